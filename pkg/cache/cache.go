package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry represents a cached value with its write time and lifetime
type Entry struct {
	Value     interface{}
	Timestamp time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its lifetime at now
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.Timestamp.Add(e.TTL))
}

// Stats summarises the entries currently held
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Cache is an in-memory key/value store with per-entry TTL.
// Reads past expiry behave as misses and evict the entry.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*Entry
	now   func() time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a new cache
func New(opts ...Option) *Cache {
	c := &Cache{items: map[string]*Entry{}, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores a value with the given TTL. A non-positive TTL stores nothing.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &Entry{
		Value:     value,
		Timestamp: c.now(),
		TTL:       ttl,
	}
}

// Get retrieves a value from the cache if it hasn't expired
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}
	if entry.Expired(c.now()) {
		c.mu.Lock()
		// the key may have been rewritten between the two locks
		if current, ok := c.items[key]; ok && current == entry {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.Value, true
}

// Delete removes a key from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// DeleteByPrefix removes all items whose key starts with prefix and
// returns how many were removed
func (c *Cache) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]*Entry{}
}

// CleanExpired evicts every expired entry and returns the number evicted.
// Calling it twice in a row evicts nothing the second time.
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if entry.Expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Stats counts live and expired entries without evicting anything
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	s := Stats{Total: len(c.items)}
	for _, entry := range c.items {
		if entry.Expired(now) {
			s.Expired++
		} else {
			s.Active++
		}
	}
	return s
}

// Keys returns the keys currently stored, expired or not
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}
