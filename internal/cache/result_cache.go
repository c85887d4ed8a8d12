package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache configuration constants.
const (
	DefaultMaxEntries     = 400
	DefaultTTL            = 2 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// entry is one cached value keyed by an opaque string (the retriever's
// fused-query cache key), plus the bookkeeping CleanExpired/Stats need.
type entry struct {
	Data        interface{}
	CachedAt    int64 // Unix nano, atomic compare
	AccessCount int64 // atomic counter
}

// ResultCache is a lock-free, TTL-expiring cache over a single sync.Map.
// It started life as the teacher's dual content/symbol/parser metrics
// cache; this repo only ever needs one keyspace — the retriever's fused
// RRF result list, keyed by (projectId, mode, query, limit, rrfK, types) —
// so the extra keyspaces and their eviction machinery were trimmed rather
// than kept disabled.
type ResultCache struct {
	entries sync.Map // map[string]*entry

	maxEntries int
	ttlNanos   int64

	hits          int64
	misses        int64
	evictions     int64
	totalRequests int64
	entryCount    int64

	createdAt   time.Time
	lastCleanup int64
}

// CacheConfig configures a ResultCache.
type CacheConfig struct {
	MaxEntries      int
	TTL             time.Duration
	AutoCleanup     bool
	CleanupInterval time.Duration
}

// DefaultCacheConfig returns the teacher's tuned defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries:      DefaultMaxEntries,
		TTL:             DefaultTTL,
		AutoCleanup:     true,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// NewResultCache creates a cache per config. AutoCleanup spawns a
// background goroutine; callers that don't want a leaked goroutine in
// short-lived tests should leave it false and call CleanExpired directly.
func NewResultCache(config CacheConfig) *ResultCache {
	c := &ResultCache{
		maxEntries:  config.MaxEntries,
		ttlNanos:    config.TTL.Nanoseconds(),
		createdAt:   time.Now(),
		lastCleanup: time.Now().UnixNano(),
	}

	if config.AutoCleanup {
		go c.startAutoCleanup(config.CleanupInterval)
	}

	return c
}

// Get returns the cached value for key, or nil on a miss or expiry.
func (c *ResultCache) Get(key string) interface{} {
	atomic.AddInt64(&c.totalRequests, 1)
	now := time.Now().UnixNano()

	if val, ok := c.entries.Load(key); ok {
		e := val.(*entry)
		if now-atomic.LoadInt64(&e.CachedAt) <= c.ttlNanos {
			atomic.AddInt64(&e.AccessCount, 1)
			atomic.AddInt64(&c.hits, 1)
			return e.Data
		}
		c.entries.Delete(key)
	}

	atomic.AddInt64(&c.misses, 1)
	return nil
}

// Put stores value under key, evicting the oldest entry first if this
// insert would exceed maxEntries.
func (c *ResultCache) Put(key string, value interface{}) {
	e := &entry{Data: value, CachedAt: time.Now().UnixNano(), AccessCount: 1}

	if _, loaded := c.entries.LoadOrStore(key, e); !loaded {
		if count := atomic.AddInt64(&c.entryCount, 1); count > int64(c.maxEntries) {
			c.evictOldest()
		}
	}
}

// evictOldest removes the least-recently-inserted entry.
func (c *ResultCache) evictOldest() {
	var oldestKey interface{}
	oldestTime := time.Now().UnixNano()

	c.entries.Range(func(key, value interface{}) bool {
		e := value.(*entry)
		if at := atomic.LoadInt64(&e.CachedAt); at < oldestTime {
			oldestTime = at
			oldestKey = key
		}
		return true
	})

	if oldestKey != nil {
		c.entries.Delete(oldestKey)
		atomic.AddInt64(&c.entryCount, -1)
		atomic.AddInt64(&c.evictions, 1)
	}
}

// CleanExpired sweeps every entry and removes anything past its TTL,
// returning how many were removed.
func (c *ResultCache) CleanExpired() int {
	now := time.Now().UnixNano()
	var cleaned, remaining int64

	c.entries.Range(func(key, value interface{}) bool {
		e := value.(*entry)
		if now-atomic.LoadInt64(&e.CachedAt) > c.ttlNanos {
			c.entries.Delete(key)
			cleaned++
		} else {
			remaining++
		}
		return true
	})

	atomic.StoreInt64(&c.entryCount, remaining)
	atomic.AddInt64(&c.evictions, cleaned)
	atomic.StoreInt64(&c.lastCleanup, now)
	return int(cleaned)
}

func (c *ResultCache) startAutoCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		c.CleanExpired()
	}
}

// Stats reports the cache's running hit/miss/eviction counters.
func (c *ResultCache) Stats() CacheStats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := atomic.LoadInt64(&c.totalRequests)

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Hits:          hits,
		Misses:        misses,
		Evictions:     atomic.LoadInt64(&c.evictions),
		TotalRequests: total,
		HitRate:       hitRate,
		Entries:       int(atomic.LoadInt64(&c.entryCount)),
		CreatedAt:     c.createdAt,
		LastCleanup:   time.Unix(0, atomic.LoadInt64(&c.lastCleanup)),
		Uptime:        time.Since(c.createdAt),
	}
}

// CacheStats is a point-in-time snapshot of ResultCache's counters.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	TotalRequests int64
	HitRate       float64
	Entries       int
	CreatedAt     time.Time
	LastCleanup   time.Time
	Uptime        time.Duration
}

// Clear removes every entry and resets all counters.
func (c *ResultCache) Clear() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
	atomic.StoreInt64(&c.totalRequests, 0)
	atomic.StoreInt64(&c.entryCount, 0)
	atomic.StoreInt64(&c.lastCleanup, time.Now().UnixNano())
}

// UpdateTTL changes the TTL and immediately sweeps anything that's now stale.
func (c *ResultCache) UpdateTTL(ttl time.Duration) {
	atomic.StoreInt64(&c.ttlNanos, ttl.Nanoseconds())
	c.CleanExpired()
}
