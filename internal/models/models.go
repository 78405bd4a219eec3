package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the coordinate was never set. (0,0) is open ocean,
// so treating it as "missing" is acceptable for this service.
func (c Coord) IsZero() bool { return c.Lat == 0 && c.Lon == 0 }

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

func (r Role) Valid() bool { return r == RoleDriver || r == RolePassenger }

// Complement returns the role a reservation must be matched against.
func (r Role) Complement() Role {
	if r == RoleDriver {
		return RolePassenger
	}
	return RoleDriver
}

type Status string

const (
	StatusSearching Status = "searching"
	StatusMatched   Status = "matched"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCanceled }

// GenderPreference is a closed enum; unknown values are rejected at the API
// boundary rather than carried through the pipeline.
type GenderPreference string

const (
	GenderPrefNone GenderPreference = "none"
	GenderPrefSame GenderPreference = "same_gender"
)

func (g GenderPreference) Valid() bool {
	return g == GenderPrefNone || g == GenderPrefSame || g == ""
}

type Preferences struct {
	Gender      GenderPreference `json:"gender,omitempty"`
	VehicleType string           `json:"vehicle_type,omitempty"`
}

// TimeWindow is the interval a user is willing to depart in.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Valid() bool { return !w.Start.IsZero() && w.End.After(w.Start) }

// Overlap returns the duration both windows share, zero if disjoint.
func (w TimeWindow) Overlap(o TimeWindow) time.Duration {
	start := w.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := w.End
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

type Reservation struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	UserGender  string      `json:"user_gender,omitempty"`
	Role        Role        `json:"role"`
	Mode        string      `json:"mode"` // travel mode, e.g. "duo"
	Origin      Coord       `json:"origin"`
	Destination Coord       `json:"destination"`
	OriginAddr  string      `json:"origin_address,omitempty"`
	DestAddr    string      `json:"destination_address,omitempty"`
	Window      TimeWindow  `json:"window"`
	Preferences Preferences `json:"preferences"`
	Capacity    int         `json:"capacity,omitempty"` // driver seats, 0 for passengers
	Status      Status      `json:"status"`
	GroupID     string      `json:"carpool_group_id,omitempty"`
	HoldID      string      `json:"-"` // escrow hold, never exposed
	Version     int64       `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Open reports whether the reservation is still eligible for matching.
func (r *Reservation) Open() bool { return r.Status == StatusSearching }

// CarpoolGroup links one driver reservation with its matched passengers.
type CarpoolGroup struct {
	ID           string    `json:"id"`
	DriverID     string    `json:"driver_reservation_id"`
	PassengerIDs []string  `json:"passenger_reservation_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// RouteEnrichment is a cached routing result for one (driver, passenger)
// candidate pair, keyed by the four corner points.
type RouteEnrichment struct {
	DriverDirectSec float64   `json:"driver_direct_seconds"`
	DetourSec       float64   `json:"detour_seconds"`
	DetourMeters    float64   `json:"detour_meters"`
	PassengerSec    float64   `json:"passenger_leg_seconds"`
	PassengerMeters float64   `json:"passenger_leg_meters"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// ReservationEvent is published to the event bus on every lifecycle change.
type ReservationEvent struct {
	Type        string      `json:"type"`
	Reservation Reservation `json:"reservation"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

const (
	EventCreated   = "reservation.created"
	EventMatched   = "reservation.matched"
	EventStarted   = "reservation.started"
	EventCompleted = "reservation.completed"
	EventCanceled  = "reservation.canceled"
	EventReopened  = "reservation.reopened"
)
