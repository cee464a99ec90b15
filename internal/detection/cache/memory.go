package cache

import (
	"context"
	"sync"
	"time"

	"insiderwatch/backend/internal/detection/domain"
)

type entry struct {
	results   domain.Results
	expiresAt time.Time
}

// MemoryCache is an in-process Cache, used when no Redis address is configured.
type MemoryCache struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Get returns the results for key if present and not expired. Expired entries are evicted.
func (c *MemoryCache) Get(_ context.Context, key string) (domain.Results, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.After(c.nowF()) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.results, true, nil
}

// Set stores results for key until ttl elapses. A non-positive ttl removes the key.
func (c *MemoryCache) Set(_ context.Context, key string, results domain.Results, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		delete(c.m, key)
		return nil
	}
	c.m[key] = entry{results: results, expiresAt: c.nowF().Add(ttl)}
	return nil
}
