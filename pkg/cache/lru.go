package cache

import (
	"container/list"
	"sync"
)

// lruCache evicts the least recently used entry once maxEntries is
// exceeded. Get and Set both count as use.
type lruCache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[K]*list.Element
	stats      *Statistics
	metrics    *cacheMetrics
	evictFn    EvictCallback[K, V]
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func newLRUCache[K comparable, V any](maxEntries int, o *builtOptions[K, V]) *lruCache[K, V] {
	return &lruCache[K, V]{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[K]*list.Element),
		stats:      o.stats,
		metrics:    o.metrics,
		evictFn:    o.evictFn,
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	el, exists := c.items[key]
	var value V
	if exists {
		c.ll.MoveToFront(el)
		value = el.Value.(*lruEntry[K, V]).value
	}
	c.mu.Unlock()

	if exists {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
	} else {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
	}
	return value, exists
}

func (c *lruCache[K, V]) Set(key K, value V) bool {
	c.mu.Lock()
	el, exists := c.items[key]
	if exists {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry[K, V]).value = value
	} else {
		c.items[key] = c.ll.PushFront(&lruEntry[K, V]{key: key, value: value})
	}

	var evicted *lruEntry[K, V]
	if c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		entry := oldest.Value.(*lruEntry[K, V])
		delete(c.items, entry.key)
		evicted = entry
	}
	size := c.ll.Len()
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
	if evicted != nil {
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.recordEviction()
		}
		if c.evictFn != nil {
			c.evictFn(evicted.key, evicted.value)
		}
	}
	return !exists
}

func (c *lruCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	el, exists := c.items[key]
	var entry *lruEntry[K, V]
	if exists {
		c.ll.Remove(el)
		entry = el.Value.(*lruEntry[K, V])
		delete(c.items, key)
	}
	size := c.ll.Len()
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(size)
		}
		if c.evictFn != nil {
			c.evictFn(entry.key, entry.value)
		}
	}
	return exists
}

func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	var entries []*lruEntry[K, V]
	if c.evictFn != nil {
		for el := c.ll.Front(); el != nil; el = el.Next() {
			entries = append(entries, el.Value.(*lruEntry[K, V]))
		}
	}
	c.ll.Init()
	c.items = make(map[K]*list.Element)
	c.mu.Unlock()

	for _, entry := range entries {
		c.evictFn(entry.key, entry.value)
	}
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
}

func (c *lruCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *lruCache[K, V]) Stats() *Statistics {
	return c.stats
}
