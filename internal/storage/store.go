package storage

import (
	"context"
	"errors"

	"github.com/example/carpool-engine/internal/models"
)

var (
	// ErrNotFound is returned when no reservation exists for an id.
	ErrNotFound = errors.New("reservation not found")
	// ErrConflict is returned when a compare-and-set transition loses to a
	// concurrent writer (first-committer-wins).
	ErrConflict = errors.New("reservation modified concurrently")
)

// ReservationStore is the single gateway for reservation state. All status
// changes go through the version-guarded operations here; no other component
// mutates reservation rows.
type ReservationStore interface {
	Create(ctx context.Context, r *models.Reservation) error
	Get(ctx context.Context, id string) (*models.Reservation, error)

	// OpenCandidates returns reservations of the given role in searching
	// state whose window overlaps w.
	OpenCandidates(ctx context.Context, role models.Role, w models.TimeWindow) ([]models.Reservation, error)

	// ByGroup returns the reservations sharing a carpool group id.
	ByGroup(ctx context.Context, groupID string) ([]models.Reservation, error)

	// OpenForUser returns the user's searching and matched reservations,
	// excluding excludeID. Used for double-booking conflict detection.
	OpenForUser(ctx context.Context, userID, excludeID string) ([]models.Reservation, error)

	// Transition performs a compare-and-set status change guarded by the
	// reservation's version. Transitions into searching or canceled clear
	// the group and hold references. Returns ErrConflict if the row moved.
	Transition(ctx context.Context, id string, version int64, from, to models.Status) error

	// MatchPair atomically moves both reservations from searching to
	// matched under the shared group id. Fails with ErrConflict if either
	// side is no longer searching at its expected version.
	MatchPair(ctx context.Context, driverID string, driverVersion int64, passengerID string, passengerVersion int64, groupID string) error

	// SetHold records the escrow hold id on a reservation.
	SetHold(ctx context.Context, id, holdID string) error

	// Reopen returns a matched reservation to searching, clearing its
	// group and hold. No-op if the reservation is not currently matched.
	Reopen(ctx context.Context, id string) error

	// ForceCancel unconditionally cancels a non-terminal reservation,
	// clearing group and hold. Used by the data-integrity recovery path.
	ForceCancel(ctx context.Context, id string) error
}
