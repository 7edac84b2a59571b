package hud

import (
	"sync"
	"time"
)

// Cache is a TTL cache for income-limit tables, keyed by
// (county, state, year, regime). The clock is injected so expiry is
// testable without sleeping.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]cacheEntry
}

type cacheEntry struct {
	table   LimitTable
	expires time.Time
}

// NewCache creates a cache with the given TTL. A nil clock uses time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:   ttl,
		now:   now,
		items: make(map[string]cacheEntry),
	}
}

// Get returns the cached table for key, or false if absent or expired.
func (c *Cache) Get(key string) (LimitTable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.items, key)
		return nil, false
	}
	return entry.table, true
}

// Set stores a table under key for the cache's TTL.
func (c *Cache) Set(key string, table LimitTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{table: table, expires: c.now().Add(c.ttl)}
}

// Len returns the number of live entries (expired entries may be counted
// until their next Get).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
