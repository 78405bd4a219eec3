package geo

import (
	"testing"

	"github.com/example/carpool-engine/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// ~111km per degree of latitude at the equator
	d := Haversine(0, 0, 1, 0)
	if d < 110000 || d > 112000 {
		t.Fatalf("expected ~111km, got %f", d)
	}
}

func res(id string, oLat, oLon, dLat, dLon float64) models.Reservation {
	return models.Reservation{
		ID:          id,
		Origin:      models.Coord{Lat: oLat, Lon: oLon},
		Destination: models.Coord{Lat: dLat, Lon: dLon},
	}
}

func TestProximityFilterBothEndpoints(t *testing.T) {
	req := res("req", 29.76, -95.37, 29.75, -95.36)
	pool := []models.Reservation{
		res("near", 29.761, -95.371, 29.749, -95.359),
		res("far-origin", 30.76, -95.37, 29.75, -95.36),
		res("far-dest", 29.76, -95.37, 30.75, -95.36),
	}
	got := ProximityFilter(req, pool, 2000)
	if len(got) != 1 || got[0].Reservation.ID != "near" {
		t.Fatalf("expected only near candidate, got %+v", got)
	}
	if got[0].OriginMeters > 2000 || got[0].DestMeters > 2000 {
		t.Fatalf("candidate endpoints outside radius: %+v", got[0])
	}
}

func TestProximityFilterOrdersByCombinedDistance(t *testing.T) {
	req := res("req", 29.76, -95.37, 29.75, -95.36)
	pool := []models.Reservation{
		res("b", 29.765, -95.37, 29.755, -95.36),
		res("a", 29.7601, -95.37, 29.7501, -95.36),
	}
	got := ProximityFilter(req, pool, 2000)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Reservation.ID != "a" || got[1].Reservation.ID != "b" {
		t.Fatalf("wrong order: %s, %s", got[0].Reservation.ID, got[1].Reservation.ID)
	}
}

func TestProximityFilterEmptyPool(t *testing.T) {
	got := ProximityFilter(res("req", 1, 1, 2, 2), nil, 2000)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}
