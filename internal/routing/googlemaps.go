package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/carpool-engine/internal/models"
)

// MapsClient is a routing provider backed by the Google Maps Directions API.
type MapsClient struct {
	client *maps.Client
}

func NewMapsClient(apiKey string) (*MapsClient, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &MapsClient{client: c}, nil
}

func (m *MapsClient) Vendor() string { return "googlemaps" }

func (m *MapsClient) Route(ctx context.Context, from, to models.Coord) (float64, float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%.6f,%.6f", from.Lat, from.Lon),
		Destination: fmt.Sprintf("%.6f,%.6f", to.Lat, to.Lon),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := m.client.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("no route found")
	}
	leg := routes[0].Legs[0]
	return leg.Duration.Seconds(), float64(leg.Distance.Meters), nil
}
