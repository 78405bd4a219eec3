package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-engine/internal/config"
	"github.com/example/carpool-engine/internal/dispatch"
	"github.com/example/carpool-engine/internal/escrow"
	"github.com/example/carpool-engine/internal/match"
	"github.com/example/carpool-engine/internal/models"
	"github.com/example/carpool-engine/internal/observability"
	"github.com/example/carpool-engine/internal/pipeline"
	"github.com/example/carpool-engine/internal/storage"
)

// Manager owns every reservation status change. The matching pipeline and
// the HTTP layer never mutate reservations directly; they go through the
// compare-and-set operations here, which makes concurrent match commits and
// cancellations resolve first-committer-wins.
type Manager struct {
	Store    storage.ReservationStore
	Pipeline *pipeline.Service
	Escrow   escrow.Coordinator
	Notifier dispatch.Notifier
	Events   EventPublisher
	Logger   *slog.Logger
	Sink     observability.Sink
	Pricing  config.PricingConfig

	// SyncMatch runs the post-create matching inline instead of in a
	// goroutine. Tests set it to observe the full flow deterministically.
	SyncMatch bool
}

// EventPublisher mirrors ingest.EventPublisher without importing kafka here.
type EventPublisher interface {
	PublishEvent(ev models.ReservationEvent) error
}

// Create validates and persists a new reservation, resolves double-booking
// conflicts with the user's other open reservations, and triggers matching.
func (m *Manager) Create(ctx context.Context, r *models.Reservation) error {
	if err := validate(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Mode == "" {
		r.Mode = "duo"
	}
	if r.Role == models.RoleDriver && r.Capacity <= 0 {
		r.Capacity = 1
	}
	now := time.Now()
	r.Status = models.StatusSearching
	r.GroupID = ""
	r.HoldID = ""
	r.Version = 0
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := m.resolveConflicts(ctx, r); err != nil {
		return err
	}
	if err := m.Store.Create(ctx, r); err != nil {
		return fmt.Errorf("persist reservation: %w", err)
	}
	observability.OpenReservations.Inc()
	m.publish(models.EventCreated, *r)

	if m.SyncMatch {
		m.runMatching(ctx, r.ID)
	} else {
		// matching runs detached from the request context
		go m.runMatching(context.Background(), r.ID)
	}
	return nil
}

// Matches returns the current ranked candidate list for polling clients.
// Non-searching reservations get an empty list, not an error.
func (m *Manager) Matches(ctx context.Context, id string) ([]match.Ranked, error) {
	r, err := m.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Open() {
		return nil, nil
	}
	return m.Pipeline.RankedMatches(ctx, r)
}

// Group returns the carpool group a reservation belongs to. Reservations
// without a group (searching, canceled) report not found.
func (m *Manager) Group(ctx context.Context, id string) (*models.CarpoolGroup, error) {
	r, err := m.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.GroupID == "" {
		return nil, storage.ErrNotFound
	}
	members, err := m.Store.ByGroup(ctx, r.GroupID)
	if err != nil {
		return nil, err
	}
	g := &models.CarpoolGroup{ID: r.GroupID}
	for _, member := range members {
		if member.Role == models.RoleDriver {
			g.DriverID = member.ID
			g.CreatedAt = member.UpdatedAt
		} else {
			g.PassengerIDs = append(g.PassengerIDs, member.ID)
		}
	}
	sort.Strings(g.PassengerIDs)
	return g, nil
}

// Cancel moves a reservation to canceled. Canceling an already-canceled
// reservation succeeds as a no-op. A matched partner is released back to
// searching with its group link severed, never left dangling.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	// one retry: a cancel racing a match commit re-reads and takes the
	// matched-cancel path on the second pass
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = m.cancelOnce(ctx, id)
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return err
}

func (m *Manager) cancelOnce(ctx context.Context, id string) error {
	r, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	switch r.Status {
	case models.StatusCanceled:
		return nil
	case models.StatusStarted, models.StatusCompleted:
		return ErrNotCancelable
	case models.StatusSearching:
		if err := m.Store.Transition(ctx, r.ID, r.Version, models.StatusSearching, models.StatusCanceled); err != nil {
			return err
		}
		observability.OpenReservations.Dec()
		m.publishAs(models.EventCanceled, *r, models.StatusCanceled)
		return nil
	case models.StatusMatched:
		return m.cancelMatched(ctx, r, dispatch.EventPartnerCanceled, "your carpool partner canceled; searching again")
	default:
		return ErrInvalidTransition
	}
}

// cancelMatched cancels one side of a matched pair, releases the escrow
// hold, and returns the partner to searching.
func (m *Manager) cancelMatched(ctx context.Context, r *models.Reservation, partnerEvent, partnerMsg string) error {
	if r.GroupID == "" {
		return m.quarantine(ctx, r, "matched reservation has no carpool group")
	}
	members, err := m.Store.ByGroup(ctx, r.GroupID)
	if err != nil {
		return err
	}
	// the cancel must own the row before escrow is touched: losing this CAS
	// to a concurrent start leaves the hold intact for the started trip
	if err := m.Store.Transition(ctx, r.ID, r.Version, models.StatusMatched, models.StatusCanceled); err != nil {
		return err
	}
	m.releaseGroupHold(ctx, members)
	m.publishAs(models.EventCanceled, *r, models.StatusCanceled)

	for _, member := range members {
		if member.ID == r.ID {
			continue
		}
		if err := m.Store.Reopen(ctx, member.ID); err != nil {
			m.logError("reopen partner", err, "reservation_id", member.ID)
			continue
		}
		observability.OpenReservations.Inc()
		m.publishAs(models.EventReopened, member, models.StatusSearching)
		m.notify(member.UserID, dispatch.Event{
			Type:          partnerEvent,
			ReservationID: member.ID,
			Message:       partnerMsg,
		})
		// the partner re-enters matching with a refreshed pool
		if m.SyncMatch {
			m.runMatching(ctx, member.ID)
		} else {
			go m.runMatching(context.Background(), member.ID)
		}
	}
	return nil
}

// Start moves a matched pair into the started state. It requires the escrow
// hold to be confirmed; a failed or missing hold reverts both reservations
// to searching and surfaces the payment error.
func (m *Manager) Start(ctx context.Context, id string) error {
	r, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != models.StatusMatched {
		return ErrInvalidTransition
	}
	if r.GroupID == "" {
		return m.quarantine(ctx, r, "matched reservation has no carpool group")
	}
	members, err := m.Store.ByGroup(ctx, r.GroupID)
	if err != nil {
		return err
	}
	if !holdConfirmed(members) {
		m.reopenGroup(ctx, members)
		return fmt.Errorf("escrow hold not confirmed: %w", escrow.ErrPaymentMethodInvalid)
	}
	for _, member := range members {
		if err := m.Store.Transition(ctx, member.ID, member.Version, models.StatusMatched, models.StatusStarted); err != nil {
			return err
		}
		m.publishAs(models.EventStarted, member, models.StatusStarted)
	}
	return nil
}

// Complete finishes a started trip and settles the escrow hold.
func (m *Manager) Complete(ctx context.Context, id string) error {
	r, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != models.StatusStarted {
		return ErrInvalidTransition
	}
	members, err := m.Store.ByGroup(ctx, r.GroupID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.HoldID == "" {
			continue
		}
		if err := m.Escrow.SettleFunds(ctx, member.HoldID, 0); err != nil {
			m.logError("settle escrow", err, "hold_id", member.HoldID)
		}
	}
	for _, member := range members {
		if err := m.Store.Transition(ctx, member.ID, member.Version, models.StatusStarted, models.StatusCompleted); err != nil {
			return err
		}
		m.publishAs(models.EventCompleted, member, models.StatusCompleted)
	}
	return nil
}

// runMatching executes the pipeline for a searching reservation and commits
// the best candidate. A lost first-committer race re-runs the pipeline once
// against the refreshed pool.
func (m *Manager) runMatching(ctx context.Context, id string) {
	for attempt := 0; attempt < 2; attempt++ {
		r, err := m.Store.Get(ctx, id)
		if err != nil || !r.Open() {
			return
		}
		ranked, err := m.Pipeline.RankedMatches(ctx, r)
		if err != nil {
			m.logError("matching pipeline", err, "reservation_id", id)
			return
		}
		if len(ranked) == 0 {
			return
		}
		err = m.commitMatch(ctx, r, ranked[0])
		switch {
		case err == nil:
			return
		case errors.Is(err, storage.ErrConflict):
			observability.MatchConflicts.Inc()
			continue
		default:
			m.logError("commit match", err, "reservation_id", id)
			return
		}
	}
}

// commitMatch performs the matched transition for both sides, then requests
// the escrow hold. A hold failure unwinds the pair back to searching.
func (m *Manager) commitMatch(ctx context.Context, req *models.Reservation, best match.Ranked) error {
	cand, err := m.Store.Get(ctx, best.Reservation.ID)
	if err != nil {
		return err
	}
	driver, passenger := orient(req, cand)
	if driver.Capacity < 1 {
		return fmt.Errorf("driver %s has no seats: %w", driver.ID, storage.ErrConflict)
	}

	groupID := uuid.NewString()
	if err := m.Store.MatchPair(ctx, driver.ID, driver.Version, passenger.ID, passenger.Version, groupID); err != nil {
		return err
	}
	observability.OpenReservations.Sub(2)

	amount := m.fare(best)
	holdID, err := m.Escrow.HoldFunds(ctx, passenger.ID, amount)
	if err != nil {
		// roll the pair back so both re-enter matching
		for _, side := range []*models.Reservation{driver, passenger} {
			if err := m.Store.Reopen(ctx, side.ID); err != nil {
				m.logError("reopen after failed hold", err, "reservation_id", side.ID)
			}
		}
		observability.OpenReservations.Add(2)
		m.notify(passenger.UserID, dispatch.Event{
			Type:          dispatch.EventPaymentFailed,
			ReservationID: passenger.ID,
			Message:       "payment hold failed; update your payment method",
		})
		m.notify(driver.UserID, dispatch.Event{
			Type:          dispatch.EventBackToSearching,
			ReservationID: driver.ID,
			Message:       "match fell through; searching again",
		})
		m.record("match", observability.StatusError, map[string]string{"error": err.Error()})
		return fmt.Errorf("escrow hold: %w", err)
	}
	if err := m.Store.SetHold(ctx, passenger.ID, holdID); err != nil {
		m.logError("record hold", err, "reservation_id", passenger.ID)
	}

	observability.MatchesTotal.Inc()
	m.record("match", observability.StatusSuccess, map[string]string{"group_id": groupID})
	for _, side := range []*models.Reservation{driver, passenger} {
		updated, err := m.Store.Get(ctx, side.ID)
		if err != nil {
			continue
		}
		m.publish(models.EventMatched, *updated)
		m.notify(updated.UserID, dispatch.Event{
			Type:          dispatch.EventMatchFound,
			ReservationID: updated.ID,
			GroupID:       groupID,
		})
	}
	return nil
}

// resolveConflicts enforces the double-booking rule: a new reservation whose
// window overlaps an existing open reservation for the same user cancels the
// older one. Unpaired reservations go silently (no escrow exists); matched
// ones take the conflict-cancel path, which releases the hold and reopens
// the partner.
func (m *Manager) resolveConflicts(ctx context.Context, r *models.Reservation) error {
	open, err := m.Store.OpenForUser(ctx, r.UserID, r.ID)
	if err != nil {
		return err
	}
	for i := range open {
		prev := &open[i]
		if prev.Window.Overlap(r.Window) <= 0 {
			continue
		}
		switch prev.Status {
		case models.StatusSearching:
			if err := m.Store.Transition(ctx, prev.ID, prev.Version, models.StatusSearching, models.StatusCanceled); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					continue // raced into matched; next create attempt will see it
				}
				return err
			}
			observability.OpenReservations.Dec()
			m.publishAs(models.EventCanceled, *prev, models.StatusCanceled)
		case models.StatusMatched:
			if err := m.cancelMatched(ctx, prev, dispatch.EventPartnerCanceled, "your carpool partner rebooked; searching again"); err != nil {
				return err
			}
			m.notify(prev.UserID, dispatch.Event{
				Type:          dispatch.EventConflictCanceled,
				ReservationID: prev.ID,
				Message:       "canceled due to an overlapping new reservation",
			})
		}
	}
	return nil
}

// quarantine handles corrupt state: log loudly, force the reservation into a
// safe canceled state, and tell the user. Never silently repaired.
func (m *Manager) quarantine(ctx context.Context, r *models.Reservation, reason string) error {
	if m.Logger != nil {
		m.Logger.Error("reservation integrity violation",
			"reservation_id", r.ID, "status", string(r.Status), "reason", reason)
	}
	m.record("integrity", observability.StatusError, map[string]string{
		"reservation_id": r.ID, "reason": reason,
	})
	if err := m.Store.ForceCancel(ctx, r.ID); err != nil {
		m.logError("force cancel", err, "reservation_id", r.ID)
	}
	m.publishAs(models.EventCanceled, *r, models.StatusCanceled)
	m.notify(r.UserID, dispatch.Event{
		Type:          dispatch.EventDataIntegrity,
		ReservationID: r.ID,
		Message:       "your reservation was canceled due to an internal inconsistency",
	})
	return fmt.Errorf("%w: %s", ErrIntegrity, reason)
}

func (m *Manager) releaseGroupHold(ctx context.Context, members []models.Reservation) {
	for _, member := range members {
		if member.HoldID == "" {
			continue
		}
		if err := m.Escrow.ReleaseFunds(ctx, member.HoldID); err != nil && !errors.Is(err, escrow.ErrHoldNotFound) {
			m.logError("release escrow", err, "hold_id", member.HoldID)
		}
	}
}

func (m *Manager) reopenGroup(ctx context.Context, members []models.Reservation) {
	for _, member := range members {
		if err := m.Store.Reopen(ctx, member.ID); err != nil {
			m.logError("reopen", err, "reservation_id", member.ID)
			continue
		}
		observability.OpenReservations.Inc()
		m.publishAs(models.EventReopened, member, models.StatusSearching)
	}
}

func (m *Manager) fare(best match.Ranked) int64 {
	km := best.PassengerMeters / 1000
	return m.Pricing.BaseFareCents + int64(km*float64(m.Pricing.CentsPerKm))
}

func holdConfirmed(members []models.Reservation) bool {
	for _, member := range members {
		if member.HoldID != "" {
			return true
		}
	}
	return false
}

// orient returns the pair as (driver, passenger) regardless of which side
// initiated the match.
func orient(a, b *models.Reservation) (driver, passenger *models.Reservation) {
	if a.Role == models.RoleDriver {
		return a, b
	}
	return b, a
}

func validate(r *models.Reservation) error {
	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if !r.Role.Valid() {
		return &ValidationError{Field: "role", Reason: "must be driver or passenger"}
	}
	if r.Origin.IsZero() {
		return &ValidationError{Field: "origin", Reason: "required"}
	}
	if r.Destination.IsZero() {
		return &ValidationError{Field: "destination", Reason: "required"}
	}
	if r.Origin.Lat < -90 || r.Origin.Lat > 90 || r.Destination.Lat < -90 || r.Destination.Lat > 90 {
		return &ValidationError{Field: "latitude", Reason: "out of range"}
	}
	if r.Origin.Lon < -180 || r.Origin.Lon > 180 || r.Destination.Lon < -180 || r.Destination.Lon > 180 {
		return &ValidationError{Field: "longitude", Reason: "out of range"}
	}
	if !r.Window.Valid() {
		return &ValidationError{Field: "window", Reason: "end must be after start"}
	}
	if !r.Preferences.Gender.Valid() {
		return &ValidationError{Field: "preferences.gender", Reason: "unknown value"}
	}
	return nil
}

// publishAs publishes the event with the post-transition state applied; the
// caller's copy predates the store update and must not leak a stale status
// into the payload.
func (m *Manager) publishAs(eventType string, r models.Reservation, st models.Status) {
	r.Status = st
	if st == models.StatusSearching || st == models.StatusCanceled {
		r.GroupID = ""
		r.HoldID = ""
	}
	m.publish(eventType, r)
}

func (m *Manager) publish(eventType string, r models.Reservation) {
	if m.Events == nil {
		return
	}
	ev := models.ReservationEvent{Type: eventType, Reservation: r, OccurredAt: time.Now()}
	if err := m.Events.PublishEvent(ev); err != nil {
		m.logError("publish event", err, "type", eventType, "reservation_id", r.ID)
	}
}

func (m *Manager) notify(userID string, ev dispatch.Event) {
	if m.Notifier == nil {
		return
	}
	// best-effort; polling clients catch up via the matches endpoint
	_ = m.Notifier.Notify(userID, ev)
}

func (m *Manager) record(operation, status string, meta map[string]string) {
	if m.Sink == nil {
		return
	}
	m.Sink.Record(observability.Record{
		Component: "lifecycle",
		Operation: operation,
		Status:    status,
		Metadata:  meta,
	})
}

func (m *Manager) logError(msg string, err error, args ...any) {
	if m.Logger == nil {
		return
	}
	m.Logger.Error(msg, append([]any{"error", err}, args...)...)
}
