// Package cache stores detection results keyed by image content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache is a byte-value store with expiry. A miss is reported through the
// boolean, not an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Options selects and configures a cache backend
type Options struct {
	Backend       string // none, memory, redis
	TTL           time.Duration
	MaxEntries    int // memory backend only, 0 selects DefaultMaxEntries
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New creates the cache backend named by opts.Backend
func New(opts Options) (Cache, error) {
	switch opts.Backend {
	case "", "none":
		return Noop{}, nil
	case "memory":
		if opts.MaxEntries == 0 {
			return NewMemory(opts.TTL), nil
		}
		return NewMemoryWithLimit(opts.TTL, opts.MaxEntries), nil
	case "redis":
		return NewRedis(opts)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// HashKey returns a hex SHA-256 of the given parts, suitable as a cache key
func HashKey(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Close() error                                      { return nil }
