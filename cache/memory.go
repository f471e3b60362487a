package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// memoryTier is an in-process tier. It is not durable and mainly serves as an
// optional L0 in front of the networked tier, and as a convenient tier for
// tests. Expired entries are dropped lazily on read.
type memoryTier struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

var _ Tier = (*memoryTier)(nil)

// NewMemoryTier returns an in-process Tier.
func NewMemoryTier() Tier {
	return &memoryTier{entries: make(map[string]memoryEntry)}
}

func (t *memoryTier) Name() string { return "memory" }

func (t *memoryTier) Get(_ context.Context, key string) (bool, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return false, nil, nil
	}
	if e.expires.Before(time.Now()) {
		delete(t.entries, key)
		return false, nil, nil
	}
	return true, e.value, nil
}

func (t *memoryTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	t.mu.Lock()
	t.entries[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
	t.mu.Unlock()
	return nil
}

func (t *memoryTier) Clear(_ context.Context, pattern string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k := range t.entries {
		if pattern == "" || strings.Contains(k, pattern) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (t *memoryTier) Stats(context.Context) map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]any{
		"tier":      t.Name(),
		"available": true,
		"entries":   len(t.entries),
	}
}

func (t *memoryTier) Close() error { return nil }
