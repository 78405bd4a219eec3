package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/carpool-engine/internal/config"
	"github.com/example/carpool-engine/internal/geo"
	"github.com/example/carpool-engine/internal/match"
	"github.com/example/carpool-engine/internal/models"
	"github.com/example/carpool-engine/internal/observability"
	"github.com/example/carpool-engine/internal/routing"
	"github.com/example/carpool-engine/internal/storage"
)

// GeoIndex pre-trims the candidate pool by origin proximity. Satisfied by
// geo.RedisIndex; nil means the exact filter scans the whole open pool.
type GeoIndex interface {
	NearbyIDs(ctx context.Context, lat, lon, radiusMeters float64, limit int) []string
}

// Service runs the matching pipeline for one reservation: proximity filter,
// compatibility filter, concurrent route enrichment, then the ranker. The
// enrichment stage is the only one that touches the network, so the cheaper
// filters always run first.
type Service struct {
	Store    storage.ReservationStore
	Enricher *routing.Enricher
	Index    GeoIndex
	Cfg      config.MatchingConfig
	Logger   *slog.Logger
}

// RankedMatches returns the ordered feasible matches for req. It degrades to
// an empty list on provider trouble and returns whatever was gathered when
// the pipeline deadline expires; errors are reserved for storage failures.
func (s *Service) RankedMatches(ctx context.Context, req *models.Reservation) ([]match.Ranked, error) {
	deadline := s.Cfg.PipelineDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.PipelineLatency.Observe(time.Since(start).Seconds())
	}()

	pool, err := s.Store.OpenCandidates(ctx, req.Role.Complement(), req.Window)
	if err != nil {
		return nil, err
	}
	pool = dropOwn(pool, req.UserID)
	pool = s.preTrim(ctx, req, pool)

	cands := geo.ProximityFilter(*req, pool, s.Cfg.RadiusMeters)
	cands = match.CompatibilityFilter(*req, cands, s.Cfg.MinWindowOverlap)
	if len(cands) == 0 {
		return nil, nil
	}

	enriched := s.Enricher.Enrich(ctx, *req, cands)
	ranked := match.Rank(enriched, match.Caps{
		DetourFraction: s.Cfg.MaxDetourFraction,
		DetourAbsolute: s.Cfg.MaxDetourAbsolute,
	})

	if s.Logger != nil {
		s.Logger.Debug("pipeline run",
			"reservation_id", req.ID,
			"pool", len(pool),
			"proximity", len(cands),
			"ranked", len(ranked),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return ranked, nil
}

// preTrim intersects the pool with the geo index's nearby set when an index
// is configured. Index misses degrade to the full pool.
func (s *Service) preTrim(ctx context.Context, req *models.Reservation, pool []models.Reservation) []models.Reservation {
	if s.Index == nil || len(pool) == 0 {
		return pool
	}
	ids := s.Index.NearbyIDs(ctx, req.Origin.Lat, req.Origin.Lon, s.Cfg.RadiusMeters, len(pool))
	if ids == nil {
		return pool
	}
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := pool[:0]
	for _, r := range pool {
		if _, ok := keep[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// dropOwn removes the requester's own reservations from the pool.
func dropOwn(pool []models.Reservation, userID string) []models.Reservation {
	out := pool[:0]
	for _, r := range pool {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	return out
}
