package routing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/carpool-engine/internal/geo"
	"github.com/example/carpool-engine/internal/models"
	"github.com/example/carpool-engine/internal/observability"
)

// fakeClient counts calls and fails the first failN invocations.
type fakeClient struct {
	calls int32
	failN int32
}

func (f *fakeClient) Vendor() string { return "fake" }

func (f *fakeClient) Route(ctx context.Context, from, to models.Coord) (float64, float64, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failN {
		return 0, 0, errors.New("provider down")
	}
	return 100, 1000, nil
}

func driver() models.Reservation {
	return models.Reservation{
		ID: "d1", Role: models.RoleDriver,
		Origin:      models.Coord{Lat: 29.76, Lon: -95.37},
		Destination: models.Coord{Lat: 29.75, Lon: -95.36},
	}
}

func passengerCand(id string) geo.Candidate {
	return geo.Candidate{Reservation: models.Reservation{
		ID: id, Role: models.RolePassenger,
		Origin:      models.Coord{Lat: 29.761, Lon: -95.371},
		Destination: models.Coord{Lat: 29.749, Lon: -95.359},
	}}
}

func newTestEnricher(c Client) *Enricher {
	e := NewEnricher(c, NewCache(time.Minute), observability.NopSink{})
	e.RetryBase = time.Millisecond
	return e
}

func TestEnrichComputesDetour(t *testing.T) {
	e := newTestEnricher(&fakeClient{})
	got := e.Enrich(context.Background(), driver(), []geo.Candidate{passengerCand("p1")})
	if len(got) != 1 {
		t.Fatalf("expected 1 enriched pair, got %d", len(got))
	}
	// via = 3*100s, direct = 100s
	if got[0].Route.DetourSec != 200 {
		t.Fatalf("expected 200s detour, got %f", got[0].Route.DetourSec)
	}
	if got[0].Route.PassengerSec != 100 {
		t.Fatalf("expected 100s passenger leg, got %f", got[0].Route.PassengerSec)
	}
}

func TestEnrichRetriesOnceThenSucceeds(t *testing.T) {
	f := &fakeClient{failN: 1}
	e := newTestEnricher(f)
	got := e.Enrich(context.Background(), driver(), []geo.Candidate{passengerCand("p1")})
	if len(got) != 1 {
		t.Fatalf("expected the retry to recover the pair, got %d results", len(got))
	}
}

func TestEnrichDropsPairAfterSecondFailure(t *testing.T) {
	f := &fakeClient{failN: 100}
	e := newTestEnricher(f)
	got := e.Enrich(context.Background(), driver(), []geo.Candidate{passengerCand("p1")})
	if len(got) != 0 {
		t.Fatalf("expected the pair to be dropped, got %d results", len(got))
	}
	if atomic.LoadInt32(&f.calls) != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", f.calls)
	}
}

func TestEnrichCacheHitSkipsProvider(t *testing.T) {
	f := &fakeClient{}
	e := newTestEnricher(f)
	cands := []geo.Candidate{passengerCand("p1")}
	e.Enrich(context.Background(), driver(), cands)
	first := atomic.LoadInt32(&f.calls)
	e.Enrich(context.Background(), driver(), cands)
	if atomic.LoadInt32(&f.calls) != first {
		t.Fatalf("expected cache hit, provider called %d more times", f.calls-first)
	}
}

func TestEnrichAllProvidersFailReturnsEmptyNotError(t *testing.T) {
	e := newTestEnricher(&fakeClient{failN: 1000})
	cands := []geo.Candidate{passengerCand("p1"), passengerCand("p2"), passengerCand("p3")}
	start := time.Now()
	got := e.Enrich(context.Background(), driver(), cands)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("enrichment took too long for failing providers")
	}
}

func TestEnrichHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEnricher(&fakeClient{})
	cands := []geo.Candidate{passengerCand("p1")}
	// already-expired context: pairs in flight may finish, but no hang
	done := make(chan struct{})
	go func() {
		e.Enrich(ctx, driver(), cands)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enrich did not return after context cancellation")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	leg := legFor(driver(), passengerCand("p1").Reservation)
	c.Set(leg, models.RouteEnrichment{DetourSec: 1, FetchedAt: time.Now()})
	if _, ok := c.Get(leg); !ok {
		t.Fatal("expected fresh entry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(leg); ok {
		t.Fatal("expected expired entry to be evicted")
	}
}

func TestLegOrientationForPassengerRequest(t *testing.T) {
	p := passengerCand("p1").Reservation
	d := driver()
	leg := legFor(p, d)
	if leg.DriverOrigin != d.Origin || leg.Pickup != p.Origin {
		t.Fatalf("leg not oriented driver-first: %+v", leg)
	}
}
