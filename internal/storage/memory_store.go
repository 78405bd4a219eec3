package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/carpool-engine/internal/models"
)

// MemoryStore keeps reservations in a mutex-guarded map. It backs local runs
// and tests; the compare-and-set semantics mirror the Postgres store.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]*models.Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reservations: make(map[string]*models.Reservation)}
}

func (m *MemoryStore) Create(ctx context.Context, r *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reservations[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) OpenCandidates(ctx context.Context, role models.Role, w models.TimeWindow) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Reservation
	for _, r := range m.reservations {
		if r.Role != role || r.Status != models.StatusSearching {
			continue
		}
		if r.Window.Overlap(w) <= 0 {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemoryStore) ByGroup(ctx context.Context, groupID string) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Reservation
	if groupID == "" {
		return out, nil
	}
	for _, r := range m.reservations {
		if r.GroupID == groupID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MemoryStore) OpenForUser(ctx context.Context, userID, excludeID string) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Reservation
	for _, r := range m.reservations {
		if r.UserID != userID || r.ID == excludeID {
			continue
		}
		if r.Status != models.StatusSearching && r.Status != models.StatusMatched {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, version int64, from, to models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != from || r.Version != version {
		return ErrConflict
	}
	applyTransition(r, to)
	return nil
}

func (m *MemoryStore) MatchPair(ctx context.Context, driverID string, driverVersion int64, passengerID string, passengerVersion int64, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.reservations[driverID]
	if !ok {
		return ErrNotFound
	}
	p, ok := m.reservations[passengerID]
	if !ok {
		return ErrNotFound
	}
	if d.Status != models.StatusSearching || d.Version != driverVersion {
		return ErrConflict
	}
	if p.Status != models.StatusSearching || p.Version != passengerVersion {
		return ErrConflict
	}
	now := time.Now()
	for _, r := range []*models.Reservation{d, p} {
		r.Status = models.StatusMatched
		r.GroupID = groupID
		r.Version++
		r.UpdatedAt = now
	}
	return nil
}

func (m *MemoryStore) SetHold(ctx context.Context, id, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.HoldID = holdID
	r.Version++
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Reopen(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != models.StatusMatched {
		return nil
	}
	applyTransition(r, models.StatusSearching)
	return nil
}

func (m *MemoryStore) ForceCancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status.Terminal() {
		return nil
	}
	applyTransition(r, models.StatusCanceled)
	return nil
}

// applyTransition bumps the version and clears pairing state when the
// reservation leaves the matched/started track.
func applyTransition(r *models.Reservation, to models.Status) {
	r.Status = to
	if to == models.StatusSearching || to == models.StatusCanceled {
		r.GroupID = ""
		r.HoldID = ""
	}
	r.Version++
	r.UpdatedAt = time.Now()
}
