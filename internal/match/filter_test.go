package match

import (
	"testing"
	"time"

	"github.com/example/carpool-engine/internal/geo"
	"github.com/example/carpool-engine/internal/models"
)

func window(startMin, endMin int) models.TimeWindow {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return models.TimeWindow{
		Start: base.Add(time.Duration(startMin) * time.Minute),
		End:   base.Add(time.Duration(endMin) * time.Minute),
	}
}

func TestCompatibleNoPreferencesPassesTrivially(t *testing.T) {
	a := models.Reservation{ID: "a", Role: models.RolePassenger, Window: window(0, 30)}
	b := models.Reservation{ID: "b", Role: models.RoleDriver, Window: window(5, 25)}
	if !Compatible(a, b, 10*time.Minute) {
		t.Fatal("expected pair with no constraints to be compatible")
	}
}

func TestCompatibleWindowOverlapTooShort(t *testing.T) {
	a := models.Reservation{ID: "a", Window: window(0, 30)}
	b := models.Reservation{ID: "b", Window: window(25, 60)}
	if Compatible(a, b, 10*time.Minute) {
		t.Fatal("5 minute overlap should fail a 10 minute minimum")
	}
}

func TestCompatibleGenderPreferenceIsSymmetric(t *testing.T) {
	a := models.Reservation{ID: "a", UserGender: "f", Window: window(0, 30)}
	b := models.Reservation{
		ID: "b", UserGender: "m", Window: window(0, 30),
		Preferences: models.Preferences{Gender: models.GenderPrefSame},
	}
	if Compatible(a, b, 10*time.Minute) {
		t.Fatal("candidate's same-gender preference must also be honored")
	}
	if Compatible(b, a, 10*time.Minute) {
		t.Fatal("requester's same-gender preference must be honored")
	}
	a.UserGender = "m"
	if !Compatible(a, b, 10*time.Minute) {
		t.Fatal("same gender pair should pass")
	}
}

func TestCompatibleSameGenderRequiresKnownGenders(t *testing.T) {
	a := models.Reservation{
		ID: "a", Window: window(0, 30),
		Preferences: models.Preferences{Gender: models.GenderPrefSame},
	}
	b := models.Reservation{ID: "b", UserGender: "f", Window: window(0, 30)}
	if Compatible(a, b, 10*time.Minute) {
		t.Fatal("unknown requester gender cannot satisfy a same-gender preference")
	}
}

func TestCompatibleModeMismatch(t *testing.T) {
	a := models.Reservation{ID: "a", Mode: "duo", Window: window(0, 30)}
	b := models.Reservation{ID: "b", Mode: "instant", Window: window(0, 30)}
	if Compatible(a, b, 10*time.Minute) {
		t.Fatal("different travel modes must not match")
	}
}

func TestCompatibleVehiclePreference(t *testing.T) {
	p := models.Reservation{
		ID: "p", Role: models.RolePassenger, Window: window(0, 30),
		Preferences: models.Preferences{VehicleType: "sedan"},
	}
	d := models.Reservation{
		ID: "d", Role: models.RoleDriver, Window: window(0, 30),
		Preferences: models.Preferences{VehicleType: "suv"},
	}
	if Compatible(p, d, 10*time.Minute) {
		t.Fatal("vehicle type mismatch should fail")
	}
	d.Preferences.VehicleType = "sedan"
	if !Compatible(p, d, 10*time.Minute) {
		t.Fatal("matching vehicle type should pass")
	}
}

func TestCompatibilityFilterKeepsOrder(t *testing.T) {
	req := models.Reservation{ID: "req", Window: window(0, 30)}
	cands := []geo.Candidate{
		{Reservation: models.Reservation{ID: "a", Window: window(0, 30)}},
		{Reservation: models.Reservation{ID: "b", Window: window(28, 60)}}, // 2 min overlap
		{Reservation: models.Reservation{ID: "c", Window: window(5, 25)}},
	}
	got := CompatibilityFilter(req, cands, 10*time.Minute)
	if len(got) != 2 || got[0].Reservation.ID != "a" || got[1].Reservation.ID != "c" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}
