package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mgxlabs/orchestrator/internal/logging"
)

// MemoryCache is the in_memory_lru_ttl backend: a fixed-capacity LRU keyed
// by insertion/access order, with per-entry TTL. Expired entries count as a
// miss and are removed lazily on access — there is no background sweeper.
// Grounded on spec.md §4.1's capacity/TTL/tie-break rules directly; no
// teacher file implements an LRU (the teacher's own internal/diff cache is
// an unbounded sync.Map), so this uses the idiomatic stdlib
// container/list + map pairing.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List // front = most recently used
	items      map[string]*list.Element

	hits      int64
	misses    int64
	evictions int64
}

type memoryEntry struct {
	key     string
	payload []byte
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache with the given capacity and
// per-entry TTL.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[string]*list.Element, maxEntries),
	}
}

// Lookup implements Cache.
func (c *MemoryCache) Lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		c.removeElement(el)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.ll.MoveToFront(el)
	atomic.AddInt64(&c.hits, 1)
	return entry.payload, true
}

// Store implements Cache. On insert when full, the least-recently-used
// entry that is still non-expired is evicted; ties are broken by
// insertion order (container/list's back element is always the oldest
// among equally-unused entries).
func (c *MemoryCache) Store(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, payload)
}

func (c *MemoryCache) storeLocked(key string, payload []byte) {
	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*memoryEntry).payload = payload
		el.Value.(*memoryEntry).expires = expires
		c.ll.MoveToFront(el)
		return
	}

	if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictOldest()
	}

	el := c.ll.PushFront(&memoryEntry{key: key, payload: payload, expires: expires})
	c.items[key] = el
}

// evictOldest walks from the back (least-recently-used end) of the list,
// removing already-expired entries it finds along the way, then evicts the
// least-recently-used entry that has not expired. If removing expired
// entries alone frees a slot, no live entry is evicted.
func (c *MemoryCache) evictOldest() {
	now := time.Now()
	el := c.ll.Back()
	for el != nil {
		entry := el.Value.(*memoryEntry)
		if entry.expires.IsZero() || !now.After(entry.expires) {
			break
		}
		prev := el.Prev()
		c.removeElement(el)
		el = prev
	}
	if el == nil || len(c.items) < c.maxEntries {
		return
	}
	c.removeElement(el)
	atomic.AddInt64(&c.evictions, 1)
}

func (c *MemoryCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	entry := el.Value.(*memoryEntry)
	delete(c.items, entry.key)
}

// Warm implements Cache.
func (c *MemoryCache) Warm(pairs map[string][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range pairs {
		c.storeLocked(k, v)
	}
}

// Inspect implements Cache.
func (c *MemoryCache) Inspect() Stats {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()
	return Stats{
		Size:      size,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// Clear implements Cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = list.New()
	c.items = make(map[string]*list.Element, c.maxEntries)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
	logging.Get(logging.CategoryCache).Debug("cache cleared")
}
