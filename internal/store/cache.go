// Package store provides the cache primitives the domain stores share: a
// key→entry map with explicit staleness flags and a non-blocking refetcher
// with bounded retry. Stores own their maps exclusively; mutation funnels
// through store methods so there is a single writer per store.
package store

import "sync"

// Status describes what a cache lookup found.
type Status int

const (
	// Miss means nothing is cached; callers render empty and trigger a fetch.
	Miss Status = iota
	// Stale means a value exists but an invalidation marked it out of date.
	Stale
	// Hit means the cached value is current.
	Hit
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

type entry[V any] struct {
	value V
	stale bool
}

// Cache is a mutex-guarded key→entry map with staleness flags.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]*entry[V])}
}

// Get returns the cached value and its status. Stale values are still
// returned so the caller can render immediately while a refetch runs.
func (c *Cache[K, V]) Get(key K) (V, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, Miss
	}
	if e.stale {
		return e.value, Stale
	}
	return e.value, Hit
}

// Put stores an authoritative value and clears staleness.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value}
}

// Update applies fn to the cached value under the lock, creating the entry
// when absent. The staleness flag is preserved.
func (c *Cache[K, V]) Update(key K, fn func(V) V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	e.value = fn(e.value)
}

// Invalidate marks the entry stale without dropping the cached value.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
}

// InvalidateAll marks every entry stale. Used after a realtime gap, when an
// unknown number of events may have been missed.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.stale = true
	}
}

// Delete removes the entry entirely.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Keys snapshots the cached keys.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
