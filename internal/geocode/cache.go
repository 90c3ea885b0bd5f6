// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wneessen/postalcode/internal/geoquery"
)

// coordPrecision is the precision used to quantize coordinates (0.0001 degrees ≈ 11 m). A coarser grid
// would snap a dragged marker back onto a previously cached neighbour.
const coordPrecision = 1e-4

type cacheKey struct {
	Provider string
	Mode     geoquery.Mode
	LatQ     int32
	LonQ     int32
	Text     string
}

type cacheEntry struct {
	Result Result
	Expiry time.Time
}

// CachedGeocoder wraps a Resolver and caches found and not-found results. Transport errors are never
// cached.
type CachedGeocoder struct {
	coder   Resolver
	ttlHit  time.Duration
	ttlMiss time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewCachedGeocoder(coder Resolver, ttlHit, ttlMiss time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		coder:   coder,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Resolve(ctx context.Context, req geoquery.Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	key := newKey(c.coder.Name(), req)

	c.mu.RLock()
	entry, ok := c.cache[key]
	if ok && time.Now().Before(entry.Expiry) {
		result := entry.Result
		c.mu.RUnlock()
		result.CacheHit = true
		return result, nil
	}
	c.mu.RUnlock()

	result, err := c.coder.Resolve(ctx, req)
	if err != nil || result.Kind == KindTransportError {
		return result, err
	}

	ttl := c.ttlHit
	if result.Kind != KindFound {
		ttl = c.ttlMiss
	}
	if ttl <= 0 {
		return result, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{
		Result: result,
		Expiry: time.Now().Add(ttl),
	}

	return result, nil
}

// Purge removes all expired entries and returns the number of removed entries.
func (c *CachedGeocoder) Purge() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.cache {
		if !now.Before(entry.Expiry) {
			delete(c.cache, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries and returns the number of removed entries.
func (c *CachedGeocoder) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.cache)
	clear(c.cache)
	return removed
}

// Len returns the number of cached entries, including expired ones that were not purged yet.
func (c *CachedGeocoder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(provider string, req geoquery.Request) cacheKey {
	key := cacheKey{Provider: provider, Mode: req.Mode()}
	switch req.Mode() {
	case geoquery.ModeReverse:
		key.LatQ = quantizeCoord(req.Coordinate().Lat)
		key.LonQ = quantizeCoord(req.Coordinate().Lon)
	case geoquery.ModeForward:
		key.Text = req.Key()
	}
	return key
}
