// SPDX-License-Identifier: MIT

// Package cache stores rendered response payloads with TTL expiry. Keys are
// namespaced per entity ("occ:", "atype:") so writes can invalidate every
// cached list for that entity with one prefix delete.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is a thread-safe byte cache with expiration.
type Cache interface {
	// Get returns the cached payload, or false when missing or expired.
	Get(key string) ([]byte, bool)
	// Set stores a payload under key for ttl.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a single key.
	Delete(key string)
	// DeletePrefix removes every key starting with prefix. Used to
	// invalidate list caches after a write.
	DeletePrefix(prefix string)
	// Stats returns cache counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// MemoryCache is the in-process Cache implementation. Callers that create
// one with a janitor own its lifecycle and must call Stop on shutdown.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemoryCache creates an in-memory cache. When cleanupInterval is
// positive a background janitor evicts expired entries on that cadence.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
	}

	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}

	return c
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.isExpired() {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return e.value, true
}

func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	c.stats.Sets++
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *MemoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, key)
			count++
		}
	}

	c.stats.Evictions += int64(count)
	return count
}

// Stop halts the background janitor.
func (c *MemoryCache) Stop() {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *MemoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

// NewNoOpCache returns a cache that stores nothing. Used when caching is
// disabled.
func NewNoOpCache() Cache {
	return &noOpCache{}
}

type noOpCache struct{}

func (c *noOpCache) Get(key string) ([]byte, bool) { return nil, false }

func (c *noOpCache) Set(key string, value []byte, ttl time.Duration) {}

func (c *noOpCache) Delete(key string) {}

func (c *noOpCache) DeletePrefix(prefix string) {}

func (c *noOpCache) Stats() Stats { return Stats{} }
