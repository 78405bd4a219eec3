package routing

import (
	"context"
	"sync"
	"time"

	"github.com/example/carpool-engine/internal/geo"
	"github.com/example/carpool-engine/internal/models"
	"github.com/example/carpool-engine/internal/observability"
)

// Enriched is a proximity/compatibility survivor with its routing result.
type Enriched struct {
	Candidate geo.Candidate
	Route     models.RouteEnrichment
}

// Enricher fans route calculations out over the surviving candidate pairs.
// It is the only pipeline stage allowed to block on network I/O, so it runs
// a bounded number of concurrent calls and absorbs provider failures by
// dropping the affected pair.
type Enricher struct {
	Client      Client
	Cache       *Cache
	Sink        observability.Sink
	Concurrency int
	CallTimeout time.Duration
	RetryBase   time.Duration
}

func NewEnricher(client Client, cache *Cache, sink observability.Sink) *Enricher {
	return &Enricher{
		Client:      client,
		Cache:       cache,
		Sink:        sink,
		Concurrency: 10,
		CallTimeout: 5 * time.Second,
		RetryBase:   500 * time.Millisecond,
	}
}

// Enrich computes the detour each candidate pair would add to the driver's
// direct route. req may be either role; the leg is always oriented as
// (driver origin, driver destination, passenger pickup, passenger dropoff).
// Pairs whose provider calls fail twice are dropped, not surfaced as errors.
// Relative candidate order is preserved for the survivors.
func (e *Enricher) Enrich(ctx context.Context, req models.Reservation, cands []geo.Candidate) []Enriched {
	if len(cands) == 0 {
		return nil
	}
	limit := e.Concurrency
	if limit <= 0 {
		limit = 10
	}

	results := make([]*Enriched, len(cands))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
loop:
	for i, c := range cands {
		select {
		case <-ctx.Done():
			// deadline reached; return whatever has been gathered
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, c geo.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			if route, ok := e.enrichPair(ctx, legFor(req, c.Reservation)); ok {
				results[i] = &Enriched{Candidate: c, Route: route}
			}
		}(i, c)
	}
	wg.Wait()

	out := make([]Enriched, 0, len(cands))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// enrichPair resolves one leg, from cache when fresh. On provider failure it
// retries once with exponential backoff; on second failure the pair is
// dropped and the failure reported to the monitoring sink.
func (e *Enricher) enrichPair(ctx context.Context, leg Leg) (models.RouteEnrichment, bool) {
	if e.Cache != nil {
		if route, ok := e.Cache.Get(leg); ok {
			return route, true
		}
	}

	start := time.Now()
	route, err := e.computeLeg(ctx, leg)
	if err != nil {
		delay := e.RetryBase
		if delay <= 0 {
			delay = 500 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			e.report(observability.StatusError, time.Since(start), err)
			return models.RouteEnrichment{}, false
		case <-time.After(delay):
		}
		route, err = e.computeLeg(ctx, leg)
	}
	if err != nil {
		e.report(observability.StatusError, time.Since(start), err)
		observability.EnrichmentDrops.WithLabelValues(e.Client.Vendor()).Inc()
		return models.RouteEnrichment{}, false
	}

	if e.Cache != nil {
		e.Cache.Set(leg, route)
	}
	e.report(observability.StatusSuccess, time.Since(start), nil)
	return route, true
}

// computeLeg issues the provider calls for one pair: the driver's direct
// route, the pickup->dropoff->destination detour legs, and the passenger leg
// (which is the pickup->dropoff segment itself).
func (e *Enricher) computeLeg(ctx context.Context, leg Leg) (models.RouteEnrichment, error) {
	directSec, directM, err := e.route(ctx, leg.DriverOrigin, leg.DriverDest)
	if err != nil {
		return models.RouteEnrichment{}, err
	}
	toPickupSec, toPickupM, err := e.route(ctx, leg.DriverOrigin, leg.Pickup)
	if err != nil {
		return models.RouteEnrichment{}, err
	}
	passengerSec, passengerM, err := e.route(ctx, leg.Pickup, leg.Dropoff)
	if err != nil {
		return models.RouteEnrichment{}, err
	}
	toDestSec, toDestM, err := e.route(ctx, leg.Dropoff, leg.DriverDest)
	if err != nil {
		return models.RouteEnrichment{}, err
	}

	viaSec := toPickupSec + passengerSec + toDestSec
	viaM := toPickupM + passengerM + toDestM
	enr := models.RouteEnrichment{
		DriverDirectSec: directSec,
		DetourSec:       viaSec - directSec,
		DetourMeters:    viaM - directM,
		PassengerSec:    passengerSec,
		PassengerMeters: passengerM,
		FetchedAt:       time.Now(),
	}
	if enr.DetourSec < 0 {
		enr.DetourSec = 0
	}
	if enr.DetourMeters < 0 {
		enr.DetourMeters = 0
	}
	return enr, nil
}

func (e *Enricher) route(ctx context.Context, from, to models.Coord) (float64, float64, error) {
	timeout := e.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Client.Route(cctx, from, to)
}

func (e *Enricher) report(status string, d time.Duration, err error) {
	if e.Sink == nil {
		return
	}
	meta := map[string]string{"vendor": e.Client.Vendor()}
	if err != nil {
		meta["error"] = err.Error()
	}
	e.Sink.Record(observability.Record{
		Component: "route_enrichment",
		Operation: "detour",
		Status:    status,
		Duration:  d,
		Metadata:  meta,
	})
}

// legFor orients a (requester, candidate) pair as driver vs passenger.
func legFor(req, cand models.Reservation) Leg {
	driver, passenger := req, cand
	if req.Role == models.RolePassenger {
		driver, passenger = cand, req
	}
	return Leg{
		DriverOrigin: driver.Origin,
		DriverDest:   driver.Destination,
		Pickup:       passenger.Origin,
		Dropoff:      passenger.Destination,
	}
}
