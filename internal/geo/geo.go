package geo

import (
	"math"
	"sort"

	"github.com/example/carpool-engine/internal/models"
)

// Candidate is a reservation that survived the proximity filter, annotated
// with the endpoint distances used for ordering and ranking tiebreaks.
type Candidate struct {
	Reservation  models.Reservation
	OriginMeters float64
	DestMeters   float64
}

// Combined is the origin+destination distance used for ascending order.
func (c Candidate) Combined() float64 { return c.OriginMeters + c.DestMeters }

// ProximityFilter returns the subset of pool whose origin and destination
// both lie within radiusMeters of the request's corresponding points,
// ordered by combined distance ascending. An empty pool yields an empty
// result, never an error.
func ProximityFilter(req models.Reservation, pool []models.Reservation, radiusMeters float64) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for _, r := range pool {
		od := Haversine(req.Origin.Lat, req.Origin.Lon, r.Origin.Lat, r.Origin.Lon)
		if od > radiusMeters {
			continue
		}
		dd := Haversine(req.Destination.Lat, req.Destination.Lon, r.Destination.Lat, r.Destination.Lon)
		if dd > radiusMeters {
			continue
		}
		out = append(out, Candidate{Reservation: r, OriginMeters: od, DestMeters: dd})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Combined() != out[j].Combined() {
			return out[i].Combined() < out[j].Combined()
		}
		return out[i].Reservation.ID < out[j].Reservation.ID
	})
	return out
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
