package storage

import (
	"context"
	"testing"
	"time"

	"github.com/example/carpool-engine/internal/models"
)

func seed(t *testing.T, s *MemoryStore, id string, role models.Role, status models.Status) *models.Reservation {
	t.Helper()
	r := &models.Reservation{
		ID:     id,
		UserID: "u-" + id,
		Role:   role,
		Status: status,
		Window: models.TimeWindow{
			Start: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
		},
	}
	if err := s.Create(context.Background(), r); err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestTransitionCASRejectsStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "r1", models.RoleDriver, models.StatusSearching)

	if err := s.Transition(ctx, "r1", 0, models.StatusSearching, models.StatusCanceled); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := s.Transition(ctx, "r1", 0, models.StatusSearching, models.StatusCanceled); err != ErrConflict {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}
}

func TestTransitionClearsGroupOnCancel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := seed(t, s, "d1", models.RoleDriver, models.StatusSearching)
	p := seed(t, s, "p1", models.RolePassenger, models.StatusSearching)

	if err := s.MatchPair(ctx, d.ID, 0, p.ID, 0, "g1"); err != nil {
		t.Fatalf("match pair: %v", err)
	}
	got, _ := s.Get(ctx, d.ID)
	if err := s.Transition(ctx, d.ID, got.Version, models.StatusMatched, models.StatusCanceled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = s.Get(ctx, d.ID)
	if got.GroupID != "" || got.HoldID != "" {
		t.Fatalf("expected group and hold cleared, got %+v", got)
	}
}

func TestMatchPairConflictWhenSideTaken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := seed(t, s, "d1", models.RoleDriver, models.StatusSearching)
	p1 := seed(t, s, "p1", models.RolePassenger, models.StatusSearching)
	p2 := seed(t, s, "p2", models.RolePassenger, models.StatusSearching)

	if err := s.MatchPair(ctx, d.ID, 0, p1.ID, 0, "g1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	if err := s.MatchPair(ctx, d.ID, 0, p2.ID, 0, "g2"); err != ErrConflict {
		t.Fatalf("expected ErrConflict for taken driver, got %v", err)
	}
	got, _ := s.Get(ctx, p2.ID)
	if got.Status != models.StatusSearching {
		t.Fatalf("loser should remain searching, got %s", got.Status)
	}
}

func TestReopenOnlyAffectsMatched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := seed(t, s, "d1", models.RoleDriver, models.StatusSearching)
	p := seed(t, s, "p1", models.RolePassenger, models.StatusSearching)
	if err := s.MatchPair(ctx, d.ID, 0, p.ID, 0, "g1"); err != nil {
		t.Fatalf("match: %v", err)
	}

	if err := s.Reopen(ctx, p.ID); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ := s.Get(ctx, p.ID)
	if got.Status != models.StatusSearching || got.GroupID != "" {
		t.Fatalf("expected reopened passenger, got %+v", got)
	}

	// reopening a searching reservation is a no-op
	before, _ := s.Get(ctx, p.ID)
	if err := s.Reopen(ctx, p.ID); err != nil {
		t.Fatalf("second reopen: %v", err)
	}
	after, _ := s.Get(ctx, p.ID)
	if after.Version != before.Version {
		t.Fatal("no-op reopen must not bump the version")
	}
}

func TestOpenCandidatesFiltersRoleStatusAndWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "d1", models.RoleDriver, models.StatusSearching)
	seed(t, s, "d2", models.RoleDriver, models.StatusMatched)
	seed(t, s, "p1", models.RolePassenger, models.StatusSearching)

	w := models.TimeWindow{
		Start: time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC),
	}
	got, err := s.OpenCandidates(ctx, models.RoleDriver, w)
	if err != nil {
		t.Fatalf("open candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d1" {
		t.Fatalf("expected only searching driver d1, got %+v", got)
	}
}

func TestForceCancelIsIdempotentOnTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "r1", models.RoleDriver, models.StatusSearching)
	if err := s.ForceCancel(ctx, "r1"); err != nil {
		t.Fatalf("force cancel: %v", err)
	}
	before, _ := s.Get(ctx, "r1")
	if err := s.ForceCancel(ctx, "r1"); err != nil {
		t.Fatalf("second force cancel: %v", err)
	}
	after, _ := s.Get(ctx, "r1")
	if after.Version != before.Version {
		t.Fatal("terminal force cancel must be a no-op")
	}
}
