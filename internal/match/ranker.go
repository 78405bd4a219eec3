package match

import (
	"sort"
	"time"

	"github.com/example/carpool-engine/internal/models"
	"github.com/example/carpool-engine/internal/routing"
)

// Ranked is one feasible match, best first in the slice returned by Rank.
type Ranked struct {
	Reservation     models.Reservation `json:"reservation"`
	DetourSec       float64            `json:"detour_seconds"`
	DetourMeters    float64            `json:"detour_meters"`
	PassengerSec    float64            `json:"passenger_leg_seconds"`
	PassengerMeters float64            `json:"passenger_leg_meters"`
	Distance        float64            `json:"combined_distance_meters"`
}

// Caps bounds the acceptable detour: the stricter of a fraction of the
// driver's direct trip time and an absolute ceiling.
type Caps struct {
	DetourFraction float64
	DetourAbsolute time.Duration
}

// Allowed returns the effective cap in seconds for a given direct trip time.
func (c Caps) Allowed(driverDirectSec float64) float64 {
	frac := c.DetourFraction
	if frac <= 0 {
		frac = 0.5
	}
	abs := c.DetourAbsolute
	if abs <= 0 {
		abs = 15 * time.Minute
	}
	limit := driverDirectSec * frac
	if s := abs.Seconds(); s < limit {
		limit = s
	}
	return limit
}

// Rank filters enriched candidates against the detour cap and orders the
// survivors by (detour time, combined distance, candidate id). The explicit
// id tiebreak makes the output reproducible regardless of the concurrent
// enrichment order.
func Rank(enriched []routing.Enriched, caps Caps) []Ranked {
	out := make([]Ranked, 0, len(enriched))
	for _, e := range enriched {
		if e.Route.DetourSec > caps.Allowed(e.Route.DriverDirectSec) {
			continue
		}
		out = append(out, Ranked{
			Reservation:     e.Candidate.Reservation,
			DetourSec:       e.Route.DetourSec,
			DetourMeters:    e.Route.DetourMeters,
			PassengerSec:    e.Route.PassengerSec,
			PassengerMeters: e.Route.PassengerMeters,
			Distance:        e.Candidate.Combined(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetourSec != out[j].DetourSec {
			return out[i].DetourSec < out[j].DetourSec
		}
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Reservation.ID < out[j].Reservation.ID
	})
	return out
}
