package routing

import (
	"context"
	"math"

	"github.com/example/carpool-engine/internal/models"
)

// StaticEstimator approximates routes as haversine distance over a constant
// speed. Used as the provider of last resort when no routing endpoint is
// configured, and as a deterministic provider in tests.
type StaticEstimator struct {
	SpeedMps float64
}

func (s StaticEstimator) Vendor() string { return "static" }

func (s StaticEstimator) Route(_ context.Context, from, to models.Coord) (float64, float64, error) {
	speed := s.SpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h default city speed
	}
	d := haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return d / speed, d, nil
}

// local haversine; provider clients stay free of intra-repo imports beyond models
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
