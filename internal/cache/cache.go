// Package cache provides write-once result caches for fetched census tables.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache returns the value stored under key, computing it on first use.
// Errors are returned to the caller and never stored.
type Cache[V any] interface {
	GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error)
}

// Memory is an in-process cache. Entries are never invalidated.
// Concurrent callers for the same missing key share one computation.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	group   singleflight.Group
}

// NewMemory creates an empty in-memory cache.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{entries: make(map[string]V)}
}

// GetOrCompute implements Cache.
func (m *Memory[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}

	res, err, _ := m.group.Do(key, func() (any, error) {
		// Another flight may have finished between lookup and Do.
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		m.mu.Lock()
		m.entries[key] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of stored entries.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory[V]) lookup(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

// Nop never stores anything; every call computes.
type Nop[V any] struct{}

// GetOrCompute implements Cache.
func (Nop[V]) GetOrCompute(ctx context.Context, _ string, compute func(context.Context) (V, error)) (V, error) {
	return compute(ctx)
}
