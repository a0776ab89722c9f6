// Package ttlcache implements a size-bounded cache with per-entry TTL.
//
// Entries expire lazily: an expired entry is removed on the next access
// and never returned. When the cache is at capacity the least recently
// used entry is evicted, expired or not, so memory stays bounded even if
// nothing is ever read back.
//
// Features:
//   - O(1) Get and Set operations (amortized)
//   - Generic types for key and value
//   - Per-entry TTL with lazy expiry
//   - Thread-safe via Mutex
//
// Thread Safety: All methods are safe for concurrent access.
package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a generic LRU cache whose entries carry an expiry deadline.
//
// Type Parameters:
//   - K: Key type (must be comparable)
//   - V: Value type (any)
type Cache[K comparable, V any] struct {
	capacity int                 // Maximum items before eviction
	mu       sync.Mutex          // Protects all fields
	list     *list.List          // LRU order (front = most recent)
	items    map[K]*list.Element // Key -> list element lookup
}

// entry stores a key-value pair plus its expiry deadline in list elements.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means the entry never expires
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// New creates a TTL cache with the given capacity.
//
// Parameters:
//   - capacity: Maximum items before LRU eviction (default: 1000 if <= 0)
//
// Returns:
//   - Configured Cache ready for Get/Set
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache[K, V]{
		capacity: capacity,
		list:     list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Get retrieves a live value by key and moves it to most recently used.
// An expired entry is removed and reported as absent.
//
// Returns:
//   - Value and true if found and not expired
//   - Zero value and false otherwise
//
// Thread Safety: Safe for concurrent calls.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if e.expired(time.Now()) {
		c.removeElement(elem)
		return zero, false
	}

	c.list.MoveToFront(elem)
	return e.value, true
}

// Set stores a key-value pair that expires after ttl, evicting the LRU
// item if at capacity.
//
// Parameters:
//   - key: Key to store
//   - value: Value to store
//   - ttl: Lifetime of the entry; <= 0 means it never expires
//
// Behavior:
//   - Updates existing key (value and deadline) and moves to front
//   - Adds new key at front
//   - Evicts LRU item if over capacity
//
// Thread Safety: Safe for concurrent calls.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, ttl)
}

// GetOrSet returns the live value for key if present; otherwise it stores
// value with the given ttl. The two steps happen under one lock, so
// concurrent callers agree on which one inserted.
//
// Returns:
//   - The stored value and true if the key was already present and live
//   - The given value and false if this call inserted it
//
// Thread Safety: Safe for concurrent calls.
func (c *Cache[K, V]) GetOrSet(key K, value V, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		if !e.expired(time.Now()) {
			c.list.MoveToFront(elem)
			return e.value, true
		}
		c.removeElement(elem)
	}

	c.set(key, value, ttl)
	return value, false
}

// set stores under an already-held lock.
func (c *Cache[K, V]) set(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.list.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	elem := c.list.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.list.Len() > c.capacity {
		back := c.list.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
}

// removeElement unlinks an element under an already-held lock.
func (c *Cache[K, V]) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}

// Delete removes a key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Purge removes every expired entry and returns how many were dropped.
// Useful for long-lived caches that are written more often than read.
func (c *Cache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for elem := c.list.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*entry[K, V]).expired(now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the current number of items, counting entries that have
// expired but not yet been swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// Clear removes all items from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[K]*list.Element)
}

// Keys returns all keys in LRU order (most recent first), including
// entries that have expired but not yet been swept.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.list.Len())
	for elem := c.list.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[K, V]).key)
	}
	return keys
}

// Capacity returns the maximum cache size.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}
