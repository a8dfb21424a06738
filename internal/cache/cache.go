// Package cache implements a small TTL-keyed store for idempotent API
// responses. Entries are evicted lazily: an entry older than the TTL is
// treated as absent on the next lookup and removed then.
//
// Which endpoints are cacheable is a policy decision owned by the API
// client, not by this package.
package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its storage timestamp.
type entry[V any] struct {
	data     V
	storedAt time.Time
}

// Cache is a thread-safe TTL cache keyed by string.
type Cache[V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]entry[V]

	now func() time.Time // injectable for tests
}

// DefaultTTL is the time-to-live applied when New is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// New creates a cache with the given TTL. A non-positive TTL falls back to
// DefaultTTL.
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		ttl:   ttl,
		items: make(map[string]entry[V]),
		now:   time.Now,
	}
}

// Get retrieves a value by key. An entry older than the TTL is deleted and
// reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.items, key)
		var zero V
		return zero, false
	}

	return e.data, true
}

// Set stores a value under key, overwriting any prior entry.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[V]{data: value, storedAt: c.now()}
}

// Delete removes a single entry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V])
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been evicted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
