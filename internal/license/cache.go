package license

import (
	"sync"
	"time"
)

// cacheEntry is one cached owner lookup. License is nil when the owner
// had no active license at lookup time (negative caching keeps the
// dashboard's polling off the store either way).
type cacheEntry struct {
	License  *LicenseKey
	CachedAt time.Time
	StaleAt  time.Time
	HitCount int
}

// StatusCache is a short-TTL cache of owner -> current license used by
// the status endpoint. Activation and HWID reset invalidate the
// owner's entry so a poll never shows pre-activation state.
type StatusCache struct {
	entries   map[string]cacheEntry
	mutex     sync.RWMutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewStatusCache creates a status cache and starts its cleanup loop.
func NewStatusCache(ttl time.Duration, maxSize int) *StatusCache {
	cache := &StatusCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Get retrieves the cached license for an owner. The second return is
// false when the entry is absent or stale. The cached license may be
// nil (owner known to have no active license).
func (c *StatusCache) Get(ownerID string) (*LicenseKey, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[ownerID]
	if !exists || time.Now().After(entry.StaleAt) {
		c.missCount++
		return nil, false
	}

	entry.HitCount++
	c.entries[ownerID] = entry
	c.hitCount++

	return entry.License, true
}

// Set stores the owner's current license (possibly nil).
func (c *StatusCache) Set(ownerID string, license *LicenseKey) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxSize <= 0 {
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[ownerID] = cacheEntry{
		License:  license,
		CachedAt: now,
		StaleAt:  now.Add(c.ttl),
	}
}

// Invalidate drops the owner's entry.
func (c *StatusCache) Invalidate(ownerID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, ownerID)
}

// Stats returns cache statistics for the health surface.
func (c *StatusCache) Stats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	totalRequests := c.hitCount + c.missCount
	hitRatio := float64(0)
	if totalRequests > 0 {
		hitRatio = float64(c.hitCount) / float64(totalRequests)
	}

	return map[string]interface{}{
		"entries":     len(c.entries),
		"max_size":    c.maxSize,
		"hit_count":   c.hitCount,
		"miss_count":  c.missCount,
		"hit_ratio":   hitRatio,
		"ttl_seconds": c.ttl.Seconds(),
	}
}

func (c *StatusCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Stop terminates the cleanup goroutine.
func (c *StatusCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *StatusCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.StaleAt) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
