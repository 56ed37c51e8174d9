// internal/cache/lru.go
//
// Tiny generic LRU used as a memoization layer by the conditional
// visibility engine.  One instance is owned by one engine, which is
// request-scoped, so the cache carries no locking.  Purge drops every entry;
// the engine calls it whenever new form data is bound.
package cache

import "container/list"

// LRU is a least-recently-used cache.  Zero value is unusable; call New.
type LRU[K comparable, V any] struct {
	cap  int
	ll   *list.List
	dict map[K]*list.Element
}

type pair[K comparable, V any] struct {
	key K
	val V
}

// New returns an LRU with the given capacity.  Panics on cap < 1.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU[K, V]{
		cap:  capacity,
		ll:   list.New(),
		dict: make(map[K]*list.Element, capacity),
	}
}

// Get retrieves a value and marks it MRU.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	if ele, hit := c.dict[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(pair[K, V]).val, true
	}
	return val, false
}

// Add inserts or updates a value, evicting the LRU entry at capacity.
func (c *LRU[K, V]) Add(key K, val V) {
	if ele, hit := c.dict[key]; hit {
		ele.Value = pair[K, V]{key, val}
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(pair[K, V]{key, val})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.dict, last.Value.(pair[K, V]).key)
	}
}

// Purge removes every entry.
func (c *LRU[K, V]) Purge() {
	c.ll.Init()
	clear(c.dict)
}

// Len reports current size.
func (c *LRU[K, V]) Len() int { return c.ll.Len() }
