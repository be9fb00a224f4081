package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value V
	// expiresAt is the zero time for entries without expiry.
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// MemoryCache implements a thread-safe in-memory cache with per-entry TTL.
// Expired entries are dropped lazily on read and eagerly by Purge.
type MemoryCache[K comparable, V any] struct {
	mu         sync.RWMutex
	data       map[K]entry[V]
	defaultTTL time.Duration
}

// NewMemoryCache creates a cache whose Set applies defaultTTL. A zero
// defaultTTL means entries never expire unless SetWithTTL says otherwise.
func NewMemoryCache[K comparable, V any](defaultTTL time.Duration) *MemoryCache[K, V] {
	return &MemoryCache[K, V]{
		data:       make(map[K]entry[V]),
		defaultTTL: defaultTTL,
	}
}

// Set adds or updates an item with the default TTL.
func (c *MemoryCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL adds or updates an item with an explicit TTL.
func (c *MemoryCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.data[key] = e
	c.mu.Unlock()
}

// Get retrieves a live item. Expired entries read as absent and are removed.
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock in case of a concurrent Set.
		if cur, ok := c.data[key]; ok && cur.expired(time.Now()) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Del removes an item from the cache.
func (c *MemoryCache[K, V]) Del(key K) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len returns the number of live items.
func (c *MemoryCache[K, V]) Len() int {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Keys returns the keys of all live items.
func (c *MemoryCache[K, V]) Keys() []K {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.data))
	for k, e := range c.data {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clear removes all items from the cache.
func (c *MemoryCache[K, V]) Clear() {
	c.mu.Lock()
	c.data = make(map[K]entry[V])
	c.mu.Unlock()
}

// Contains checks whether a live item exists for the key.
func (c *MemoryCache[K, V]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Purge removes expired entries and returns how many were dropped.
func (c *MemoryCache[K, V]) Purge() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for k, e := range c.data {
		if e.expired(now) {
			delete(c.data, k)
			dropped++
		}
	}
	return dropped
}
