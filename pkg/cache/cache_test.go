package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	value := []byte(`[{"box":{"x1":1}}]`)
	if err := c.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'X' // stored copy must not alias the caller's slice

	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `[{"box":{"x1":1}}]` {
		t.Errorf("Get = %q", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"))
	now = now.Add(2 * time.Second)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be dropped, Len = %d", c.Len())
	}
}

func TestMemorySweepsExpiredOnSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte("v"))
	}
	now = now.Add(2 * time.Second)

	// keys that are never read again still go away
	_ = c.Set(ctx, "d", []byte("v"))
	if c.Len() != 1 {
		t.Errorf("expected expired entries to be swept, Len = %d", c.Len())
	}
}

func TestMemoryLimit(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryWithLimit(0, 2)

	_ = c.Set(ctx, "a", []byte("1"))
	_ = c.Set(ctx, "b", []byte("2"))
	_ = c.Set(ctx, "a", []byte("3")) // overwrite does not evict
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	_ = c.Set(ctx, "c", []byte("4"))
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("expected the oldest entry to be evicted")
	}
	if v, ok, _ := c.Get(ctx, "a"); !ok || string(v) != "3" {
		t.Errorf("expected rewritten entry to survive, got %q ok=%v", v, ok)
	}
	if _, ok, _ := c.Get(ctx, "c"); !ok {
		t.Error("expected newest entry to be stored")
	}
}

func TestNew(t *testing.T) {
	for _, backend := range []string{"", "none", "memory"} {
		c, err := New(Options{Backend: backend})
		if err != nil {
			t.Errorf("New(%q) failed: %v", backend, err)
			continue
		}
		_ = c.Close()
	}

	if _, err := New(Options{Backend: "memcached"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(Options{Backend: "redis"}); err == nil {
		t.Error("expected error for redis without address")
	}
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	_ = c.Set(ctx, "k", []byte("v"))
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("noop cache should never hit")
	}
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("ab"), []byte("c"))
	b := HashKey([]byte("a"), []byte("bc"))
	if a == b {
		t.Error("part boundaries should change the key")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
	if a != HashKey([]byte("ab"), []byte("c")) {
		t.Error("HashKey should be deterministic")
	}
}
