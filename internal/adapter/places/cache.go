package places

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/jonboulle/clockwork"
)

// CachedFinder wraps a PlaceFinder with an in-memory TTL cache. The clock is
// injected so expiry is deterministic in tests.
type CachedFinder struct {
	inner domain.PlaceFinder
	cache *ttlCache
}

// NewCachedFinder creates a cache decorator around a place finder.
func NewCachedFinder(inner domain.PlaceFinder, maxEntries int, ttl time.Duration, clock clockwork.Clock) *CachedFinder {
	return &CachedFinder{
		inner: inner,
		cache: newTTLCache(maxEntries, ttl, clock),
	}
}

func (c *CachedFinder) NearbySearch(ctx context.Context, lat, lon, radiusMiles float64, category string) ([]domain.PlaceCandidate, error) {
	key := fmt.Sprintf("near:%.6f,%.6f|%.1f|%s", lat, lon, radiusMiles, category)
	if v, ok := c.cache.get(key); ok {
		return v.([]domain.PlaceCandidate), nil
	}
	result, err := c.inner.NearbySearch(ctx, lat, lon, radiusMiles, category)
	if err != nil {
		return nil, err
	}
	// Empty answers are not cached so a transient miss can be retried.
	if len(result) > 0 {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedFinder) ReverseLookup(ctx context.Context, lat, lon float64) (domain.PlaceCandidate, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if v, ok := c.cache.get(key); ok {
		return v.(domain.PlaceCandidate), nil
	}
	result, err := c.inner.ReverseLookup(ctx, lat, lon)
	if err != nil {
		return domain.PlaceCandidate{}, err
	}
	if result.Name != "" {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedFinder) TextSearch(ctx context.Context, query string) (domain.PlaceCandidate, error) {
	key := "text:" + query
	if v, ok := c.cache.get(key); ok {
		return v.(domain.PlaceCandidate), nil
	}
	result, err := c.inner.TextSearch(ctx, query)
	if err != nil {
		return domain.PlaceCandidate{}, err
	}
	if result.Name != "" {
		c.cache.put(key, result)
	}
	return result, nil
}

// ttlCache is a thread-safe map cache with per-entry expiry and a hard size
// cap. Expired entries are dropped lazily on read; when the cap is hit, the
// oldest entry is evicted.
type ttlCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]ttlEntry
}

type ttlEntry struct {
	value      any
	insertedAt time.Time
}

func newTTLCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *ttlCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ttlCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]ttlEntry),
	}
}

func (c *ttlCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = ttlEntry{value: value, insertedAt: c.clock.Now()}
}

func (c *ttlCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
