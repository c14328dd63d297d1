package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a memory cache created without an explicit limit
const DefaultMaxEntries = 10000

type entry struct {
	value     []byte
	expiresAt time.Time
	seq       uint64
}

// Memory is an in-process cache with a fixed TTL and an entry limit.
// Expired entries are dropped on read and swept on write at most once per
// TTL; when the limit is reached the oldest entry is evicted.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	seq        uint64
	nextSweep  time.Time
	now        func() time.Time
}

// NewMemory creates an in-memory cache holding at most DefaultMaxEntries;
// ttl <= 0 keeps entries until they are evicted
func NewMemory(ttl time.Duration) *Memory {
	return NewMemoryWithLimit(ttl, DefaultMaxEntries)
}

// NewMemoryWithLimit is NewMemory with an explicit entry limit; maxEntries
// <= 0 means unbounded
func NewMemoryWithLimit(ttl time.Duration, maxEntries int) *Memory {
	return &Memory{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if m.expired(e, m.now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	now := m.now()
	e := entry{value: append([]byte(nil), value...)}
	if m.ttl > 0 {
		e.expiresAt = now.Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ttl > 0 && !now.Before(m.nextSweep) {
		m.sweepLocked(now)
		m.nextSweep = now.Add(m.ttl)
	}
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.sweepLocked(now)
		if len(m.entries) >= m.maxEntries {
			m.evictOldestLocked()
		}
	}

	m.seq++
	e.seq = m.seq
	m.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) expired(e entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (m *Memory) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) evictOldestLocked() {
	var (
		oldest string
		seq    uint64
		found  bool
	)
	for k, e := range m.entries {
		if !found || e.seq < seq {
			oldest, seq, found = k, e.seq, true
		}
	}
	if found {
		delete(m.entries, oldest)
	}
}
