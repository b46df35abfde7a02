// Package lru provides a generic thread-safe LRU cache bounded by entry count,
// total value size, or both.
package lru

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// Cache is a thread-safe generic LRU cache.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*list.Element
	order   *list.List // Front is most recently used.

	maxEntries int
	maxSize    int64
	curSize    int64
	sizeFunc   func(V) int64
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxEntries sets the maximum number of entries.
func WithMaxEntries[K comparable, V any](n int) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxEntries = n
	}
}

// WithMaxBytes sets the maximum total size and the function measuring each value.
func WithMaxBytes[K comparable, V any](maxBytes int64, sizeFunc func(V) int64) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxSize = maxBytes
		c.sizeFunc = sizeFunc
	}
}

// New creates a cache. At least one of WithMaxEntries and WithMaxBytes must
// set a positive limit; otherwise New panics.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]*list.Element),
		order:   list.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxEntries <= 0 && c.maxSize <= 0 {
		panic("lru: at least one capacity limit (WithMaxEntries or WithMaxBytes) is required")
	}

	return c
}

// Get returns the value for key and marks it as recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		var zero V

		return zero, false
	}

	c.order.MoveToFront(elem)

	return elem.Value.(*entry[K, V]).value, true
}

// Put adds or replaces key. Values larger than the whole cache are dropped.
func (c *Cache[K, V]) Put(key K, value V) {
	var size int64
	if c.sizeFunc != nil {
		size = c.sizeFunc(value)
	}

	if c.maxSize > 0 && size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}

	for c.order.Len() > 0 &&
		((c.maxEntries > 0 && c.order.Len() >= c.maxEntries) || (c.maxSize > 0 && c.curSize+size > c.maxSize)) {
		c.remove(c.order.Back())
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, size: size})
	c.curSize += size
}

// Remove drops key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}
}

func (c *Cache[K, V]) remove(elem *list.Element) {
	ent := c.order.Remove(elem).(*entry[K, V])
	delete(c.entries, ent.key)
	c.curSize -= ent.size
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

// Stats is a snapshot of cache occupancy.
type Stats struct {
	Entries     int
	CurrentSize int64
}

// Stats returns the current occupancy.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:     c.order.Len(),
		CurrentSize: c.curSize,
	}
}
