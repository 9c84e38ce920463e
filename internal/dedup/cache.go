// Package dedup answers "is this URL already known?" across the work
// queue and the match store, fronted by an in-process cache so scrape
// runners do not hammer the store with membership probes.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry records a known/unknown verdict for a normalized URL hash.
// Both presence and absence are cached.
type cacheEntry struct {
	key       string
	known     bool
	expiresAt time.Time
}

// lruCache is a fixed-capacity LRU with per-entry TTL. Safe for
// concurrent use by multiple worker loops.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // Front = most recently used
	now      func() time.Time
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// get returns (known, hit). An expired entry is a miss and is evicted.
func (c *lruCache) get(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return false, false
	}
	entry := element.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(element)
		delete(c.entries, key)
		return false, false
	}
	c.order.MoveToFront(element)
	return entry.known, true
}

func (c *lruCache) set(key string, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*cacheEntry)
		entry.known = known
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(element)
		return
	}

	entry := &cacheEntry{key: key, known: known, expiresAt: c.now().Add(c.ttl)}
	c.entries[key] = c.order.PushFront(entry)

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// invalidate drops entries so a failed store query is re-asked next time
func (c *lruCache) invalidate(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if element, ok := c.entries[key]; ok {
			c.order.Remove(element)
			delete(c.entries, key)
		}
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
