// Package cache provides an in-memory cache of search results.
//
// Entries are keyed by a fingerprint of everything that determines a result:
// the element sets (or catalog revisions) of both satellites, the window and
// the search options. A background sweeper evicts entries older than the TTL,
// and entries tagged with a satellite are dropped when that satellite's
// element sets change.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvsankar/sattosat/internal/metrics"
)

// Config holds cache configuration.
type Config struct {
	TTL           time.Duration // Entry lifetime (default: 10m)
	SweepInterval time.Duration // Eviction loop period (default: 1m)
	MaxEntries    int           // Oldest entry is evicted past this (0 = unbounded)
}

// Key is a request fingerprint.
type Key string

// Fingerprint hashes the given parts, in order, into a Key. Parts are
// formatted with %v, so callers should pass values with stable formatting
// (UTC times, integers, strings).
func Fingerprint(kind string, parts ...any) Key {
	h := sha256.New()
	fmt.Fprintf(h, "%s", kind)
	for _, p := range parts {
		fmt.Fprintf(h, "\x1f%v", p)
	}
	return Key(kind + ":" + hex.EncodeToString(h.Sum(nil))[:32])
}

// Entry is a cached value with its metadata.
type Entry struct {
	Value    any
	NORADIDs []int
	StoredAt time.Time
}

// ResultCache is an in-memory result cache with TTL eviction.
// Safe for concurrent use by multiple goroutines.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry

	config Config
	logger *slog.Logger
	now    func() time.Time

	// Counters (lock-free).
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
}

// New creates a result cache, filling unset config fields with defaults.
func New(config Config, logger *slog.Logger) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}

	logger.Info("result cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"sweep_interval_seconds", config.SweepInterval.Seconds(),
		"max_entries", config.MaxEntries,
	)

	return &ResultCache{
		entries: make(map[Key]*Entry),
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the value stored under key. An expired entry is a miss even if
// the sweeper has not removed it yet.
func (c *ResultCache) Get(key Key) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.StoredAt) < c.config.TTL {
		c.hits.Add(1)
		metrics.RecordCacheLookup(true)
		return entry.Value, true
	}

	c.misses.Add(1)
	metrics.RecordCacheLookup(false)
	return nil, false
}

// Put stores value under key, tagged with the satellites it depends on.
func (c *ResultCache) Put(key Key, value any, noradIDs ...int) {
	entry := &Entry{
		Value:    value,
		NORADIDs: append([]int(nil), noradIDs...),
		StoredAt: c.now(),
	}

	c.mu.Lock()
	c.entries[key] = entry
	evicted := 0
	for c.config.MaxEntries > 0 && len(c.entries) > c.config.MaxEntries {
		c.evictOldestLocked()
		evicted++
	}
	count := len(c.entries)
	c.mu.Unlock()

	if evicted > 0 {
		c.evictions.Add(int64(evicted))
	}
	metrics.SetCacheEntries(count)
}

// evictOldestLocked removes the entry with the earliest StoredAt.
// Caller must hold mu for writing.
func (c *ResultCache) evictOldestLocked() {
	var (
		oldestKey Key
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.StoredAt.Before(oldest) {
			oldestKey, oldest, found = k, e.StoredAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// Invalidate removes every entry tagged with noradID and returns how many
// were removed.
func (c *ResultCache) Invalidate(noradID int) int {
	var removed int

	c.mu.Lock()
	for k, e := range c.entries {
		for _, id := range e.NORADIDs {
			if id == noradID {
				delete(c.entries, k)
				removed++
				break
			}
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.invalidations.Add(int64(removed))
		metrics.SetCacheEntries(count)
		c.logger.Info("cache invalidated", "norad_id", noradID, "entries_removed", removed)
	}
	return removed
}

// evictExpired removes entries older than the TTL.
func (c *ResultCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)
	var removed int

	c.mu.Lock()
	for k, e := range c.entries {
		if !e.StoredAt.After(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.SetCacheEntries(count)
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}
	return removed
}

// Start runs the eviction loop until ctx is cancelled.
func (c *ResultCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries       int       `json:"entries"`
	OldestEntry   time.Time `json:"oldest_entry"`
	NewestEntry   time.Time `json:"newest_entry"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Evictions     int64     `json:"evictions"`
	Invalidations int64     `json:"invalidations"`
	TTLSeconds    float64   `json:"ttl_seconds"`
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)

	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.StoredAt.Before(oldest) {
			oldest = e.StoredAt
		}
		if newest.IsZero() || e.StoredAt.After(newest) {
			newest = e.StoredAt
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:       count,
		OldestEntry:   oldest,
		NewestEntry:   newest,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		TTLSeconds:    c.config.TTL.Seconds(),
	}
}
