// ABOUTME: Thread-safe TTL cache for resolved actor keys.
// ABOUTME: Size-limited with O(1) oldest-entry eviction via a linked list.

package fedkey

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the cached key, its fetch time, and its list element.
type cacheEntry struct {
	key       *ActorKey
	timestamp time.Time
	element   *list.Element
}

// keyCache caches resolved actor keys so repeat verifications touch the
// network only when the entry has expired. Insertion order drives eviction.
type keyCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

func newKeyCache(ttl time.Duration, maxSize int) *keyCache {
	c := &keyCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// get returns the cached key if present and not expired.
func (c *keyCache) get(keyID string) (*ActorKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[keyID]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return nil, false
	}
	return entry.key, true
}

// put stores a resolved key, evicting the oldest entry at capacity.
func (c *keyCache) put(keyID string, key *ActorKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if entry, exists := c.entries[keyID]; exists {
		entry.key = key
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(keyID)
	c.entries[keyID] = &cacheEntry{
		key:       key,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *keyCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	keyID, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, keyID)
}

// cleanup periodically removes expired entries until the cache is closed.
func (c *keyCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *keyCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for keyID, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, keyID)
		}
	}
}

// close stops the cleanup goroutine. Safe to call multiple times.
func (c *keyCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
