package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/carpool-engine/internal/models"
)

// Client is the interface to an external routing provider. Route returns
// driving duration in seconds and distance in meters between two points.
type Client interface {
	Route(ctx context.Context, from, to models.Coord) (durationSec, distanceM float64, err error)
	Vendor() string
}

// Leg identifies one candidate pair's routing problem by its four corner
// points. It is the cache key for RouteEnrichment records.
type Leg struct {
	DriverOrigin models.Coord
	DriverDest   models.Coord
	Pickup       models.Coord
	Dropoff      models.Coord
}

func (l Leg) key() string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f|%.6f,%.6f|%.6f,%.6f",
		l.DriverOrigin.Lat, l.DriverOrigin.Lon,
		l.DriverDest.Lat, l.DriverDest.Lon,
		l.Pickup.Lat, l.Pickup.Lon,
		l.Dropoff.Lat, l.Dropoff.Lon)
}

// Cache holds RouteEnrichment results keyed by the four-point tuple.
// Entries expire after a TTL since traffic conditions shift.
type Cache struct {
	mu    sync.RWMutex
	store map[string]models.RouteEnrichment
	ttl   time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]models.RouteEnrichment), ttl: ttl}
}

func (c *Cache) Get(l Leg) (models.RouteEnrichment, bool) {
	k := l.key()
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.RouteEnrichment{}, false
	}
	if time.Since(e.FetchedAt) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.RouteEnrichment{}, false
	}
	return e, true
}

func (c *Cache) Set(l Leg, e models.RouteEnrichment) {
	c.mu.Lock()
	c.store[l.key()] = e
	c.mu.Unlock()
}
