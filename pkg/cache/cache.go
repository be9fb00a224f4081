// Package cache provides a generic in-process cache with per-entry expiry.
package cache

import "time"

// Cache defines the basic interface for a generic expiring cache.
type Cache[K comparable, V any] interface {
	// Set adds or updates an item with the cache's default TTL.
	Set(key K, value V)
	// SetWithTTL adds or updates an item with an explicit TTL. A zero or
	// negative TTL stores the item without expiry.
	SetWithTTL(key K, value V, ttl time.Duration)
	// Get retrieves a live item from the cache.
	Get(key K) (V, bool)
	// Del removes an item from the cache.
	Del(key K)
	// Len returns the number of live items in the cache.
	Len() int
	// Keys returns the keys of all live items.
	Keys() []K
	// Clear removes all items from the cache.
	Clear()
	// Contains checks whether a live item exists for the key.
	Contains(key K) bool
	// Purge removes expired entries and returns how many were dropped.
	Purge() int
}
