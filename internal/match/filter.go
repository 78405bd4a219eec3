package match

import (
	"time"

	"github.com/example/carpool-engine/internal/geo"
	"github.com/example/carpool-engine/internal/models"
)

// CompatibilityFilter removes candidates whose preferences conflict with the
// requester's, or whose time window overlaps the requester's by less than
// minOverlap. Pure function over in-memory data; no I/O.
func CompatibilityFilter(req models.Reservation, cands []geo.Candidate, minOverlap time.Duration) []geo.Candidate {
	out := make([]geo.Candidate, 0, len(cands))
	for _, c := range cands {
		if !Compatible(req, c.Reservation, minOverlap) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Compatible checks one pair. Preference checks are symmetric: either side
// may impose a constraint and both must be satisfied. A requester with no
// constraints passes trivially.
func Compatible(a, b models.Reservation, minOverlap time.Duration) bool {
	if a.Mode != "" && b.Mode != "" && a.Mode != b.Mode {
		return false
	}
	if a.Window.Overlap(b.Window) < minOverlap {
		return false
	}
	if !genderOK(a, b) || !genderOK(b, a) {
		return false
	}
	if !vehicleOK(a, b) || !vehicleOK(b, a) {
		return false
	}
	return true
}

func genderOK(who, other models.Reservation) bool {
	if who.Preferences.Gender != models.GenderPrefSame {
		return true
	}
	// same-gender matching requires both genders to be known
	if who.UserGender == "" || other.UserGender == "" {
		return false
	}
	return who.UserGender == other.UserGender
}

// vehicleOK enforces a passenger's vehicle-type preference against the
// driver's vehicle type. Drivers carry their vehicle type in the same
// preferences field.
func vehicleOK(who, other models.Reservation) bool {
	if who.Role != models.RolePassenger || who.Preferences.VehicleType == "" {
		return true
	}
	if other.Preferences.VehicleType == "" {
		return true
	}
	return who.Preferences.VehicleType == other.Preferences.VehicleType
}
