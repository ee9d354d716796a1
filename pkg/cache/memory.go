package cache

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryCache keeps entries in process memory. Used by tests and by one-off
// runs that should not touch disk.
type MemoryCache struct {
	mu      sync.RWMutex
	opts    Options
	entries map[string]Entry
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(opts Options) *MemoryCache {
	return &MemoryCache{opts: opts.withDefaults(), entries: make(map[string]Entry)}
}

func (m *MemoryCache) Backend() string { return "memory" }

func (m *MemoryCache) lookup(key string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (m *MemoryCache) Get(ctx context.Context, key string) (*Entry, bool) {
	e, ok := m.lookup(key)
	switch {
	case !ok:
		observe(m.opts.Logger, m.Backend(), key, "miss")
		return nil, false
	case !m.opts.fresh(e):
		observe(m.opts.Logger, m.Backend(), key, "stale")
		return nil, false
	}
	observe(m.opts.Logger, m.Backend(), key, "hit")
	return e, true
}

func (m *MemoryCache) Peek(ctx context.Context, key string) (*Entry, bool) {
	return m.lookup(key)
}

func (m *MemoryCache) Put(ctx context.Context, key, source string, data json.RawMessage) error {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.entries {
		if now.Sub(e.Timestamp) > m.opts.StaleRetention {
			delete(m.entries, k)
		}
	}
	m.entries[key] = Entry{Data: append(json.RawMessage(nil), data...), Source: source, Timestamp: now}
	return nil
}

func (m *MemoryCache) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of stored entries, fresh or not
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
