package server

import (
	"sync"
	"time"
)

type cacheEntry struct {
	status   ServerStatus
	storedAt time.Time
}

// StatusCache memoizes resolved statuses for a fixed TTL.
type StatusCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewStatusCache(ttl time.Duration) *StatusCache {
	return &StatusCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached status if it is younger than the TTL.
func (c *StatusCache) Get(name string) (ServerStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[name]
	if !ok {
		return ServerStatus{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, name)
		return ServerStatus{}, false
	}
	return entry.status.clone(), true
}

func (c *StatusCache) Set(name string, status ServerStatus) {
	c.mu.Lock()
	c.entries[name] = cacheEntry{status: status.clone(), storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the entry for name.
func (c *StatusCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
