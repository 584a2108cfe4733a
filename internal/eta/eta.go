package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/models"
)

// Cache is a tiny in-memory cache for ETA lookups keyed by coordinate pair.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Point) string {
	return fmtPoint(a) + "->" + fmtPoint(b)
}

func fmtPoint(p models.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

func (c *Cache) Get(a, b models.Point) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Point, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// EstimateMinutes is a straight-line distance / speed estimate. Good enough
// for the estimated_minutes stamp; routing engines are out of scope.
func EstimateMinutes(from, to models.Point, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	d := geo.Haversine(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	return d / speedMps / 60.0
}
