// Package cache implements an in-memory TTL+LRU cache shared by context
// probes, provider metadata, and anything else that wants a bounded
// namespaced memo without touching disk.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const defaultMaxEntries = 4096

type entry struct {
	key        string
	value      any
	expiresAt  time.Time
	insertedAt time.Time
}

// Cache is a single shared map guarded by one mutex; callers that want
// isolation should use Namespace rather than constructing multiple Caches.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element // key -> node in order
	order      *list.List                // front = most recently used

	hits      uint64
	misses    uint64
	sets      uint64
	evictions uint64
}

func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{
		maxEntries: maxEntries,
		items:      map[string]*list.Element{},
		order:      list.New(),
	}
}

// Get returns the stored value if present and unexpired. A hit moves the
// entry to the front of the LRU order without extending its TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElementLocked(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key with the given TTL, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++

	now := time.Now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = now.Add(ttl)
		e.insertedAt = now
		c.order.MoveToFront(el)
		return
	}

	for len(c.items) >= c.maxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeElementLocked(back)
		c.evictions++
	}

	e := &entry{key: key, value: value, expiresAt: now.Add(ttl), insertedAt: now}
	el := c.order.PushFront(e)
	c.items[key] = el
}

// Delete removes key unconditionally.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElementLocked(el)
	}
}

func (c *Cache) removeElementLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(el)
}

// Prune removes every currently expired entry and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if now.After(e.expiresAt) {
			c.removeElementLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Evictions uint64
	Entries   int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		Entries:   len(c.items),
	}
}

// HitRate returns hits/(hits+misses), or 0 when there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Namespace is a key-prefixed view over a shared Cache with a default TTL,
// so unrelated subsystems never collide on key names.
type Namespace struct {
	cache      *Cache
	prefix     string
	defaultTTL time.Duration
}

func (c *Cache) Namespace(name string, defaultTTL time.Duration) *Namespace {
	return &Namespace{cache: c, prefix: name + ":", defaultTTL: defaultTTL}
}

func (n *Namespace) Get(key string) (any, bool) {
	return n.cache.Get(n.prefix + key)
}

func (n *Namespace) Set(key string, value any) {
	n.cache.Set(n.prefix+key, value, n.defaultTTL)
}

func (n *Namespace) SetTTL(key string, value any, ttl time.Duration) {
	n.cache.Set(n.prefix+key, value, ttl)
}

func (n *Namespace) Delete(key string) {
	n.cache.Delete(n.prefix + key)
}
