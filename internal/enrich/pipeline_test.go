package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-location-backend/internal/geocode"
)

type call struct{ lat, lng float64 }

type fakeResolver struct {
	mu      sync.Mutex
	calls   []call
	addr    string
	entered chan struct{} // signalled on each call, if set
	release chan struct{} // calls wait on it (or ctx), if set
	panics  bool
}

func (f *fakeResolver) ResolveCoordinates(ctx context.Context, lat, lng float64) (*geocode.AddressResult, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, call{lat, lng})
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, false
		}
	}
	if f.panics {
		panic("boom")
	}
	if f.addr == "" {
		return nil, false
	}
	return &geocode.AddressResult{Address: f.addr}, true
}

func (f *fakeResolver) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type write struct {
	id       string
	lat, lng float64
	address  string
}

type fakeUpdater struct {
	mu     sync.Mutex
	writes []write
	result bool
	err    error
}

func (f *fakeUpdater) SetAddressIfEmpty(_ context.Context, id string, lat, lng float64, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{id, lat, lng, address})
	return f.result, f.err
}

func (f *fakeUpdater) Writes() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

func shutdown(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNew_NilDepsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(nil, &fakeUpdater{})
}

func TestEnrich_AppliesResolvedAddress(t *testing.T) {
	r := &fakeResolver{addr: "Main St 1"}
	u := &fakeUpdater{result: true}
	p := New(r, u, WithWorkers(2))
	p.Start(context.Background())

	before := testutil.ToFloat64(jobsTotal.WithLabelValues("applied"))
	p.Enrich("loc-1", 52.1, 4.3)
	shutdown(t, p)

	w := u.Writes()
	if len(w) != 1 || w[0] != (write{"loc-1", 52.1, 4.3, "Main St 1"}) {
		t.Fatalf("unexpected writes: %+v", w)
	}
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("applied")); got != before+1 {
		t.Fatalf("applied counter = %v; want %v", got, before+1)
	}
	if p.Pending() != 0 {
		t.Fatalf("state not cleaned up: %d pending", p.Pending())
	}
}

func TestEnrich_NeverBlocksCaller(t *testing.T) {
	r := &fakeResolver{addr: "x", release: make(chan struct{})}
	p := New(r, &fakeUpdater{}, WithWorkers(1), WithQueueSize(2))
	p.Start(context.Background())

	start := time.Now()
	for i := 0; i < 50; i++ {
		p.Enrich(fmt.Sprintf("loc-%d", i), 1, 2)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("Enrich blocked the caller")
	}
	close(r.release)
	shutdown(t, p)
}

func TestEnrich_UnresolvedDoesNotWrite(t *testing.T) {
	r := &fakeResolver{}
	u := &fakeUpdater{result: true}
	p := New(r, u)
	p.Start(context.Background())

	before := testutil.ToFloat64(jobsTotal.WithLabelValues("unresolved"))
	p.Enrich("loc-1", 0, 0)
	shutdown(t, p)

	if len(u.Writes()) != 0 {
		t.Fatalf("no write expected when resolution is absent")
	}
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("unresolved")); got != before+1 {
		t.Fatalf("unresolved counter = %v; want %v", got, before+1)
	}
}

func TestEnrich_NotAppliedAndFailuresAreAbsorbed(t *testing.T) {
	r := &fakeResolver{addr: "A"}

	skippedBefore := testutil.ToFloat64(jobsTotal.WithLabelValues("skipped"))
	p := New(r, &fakeUpdater{result: false})
	p.Start(context.Background())
	p.Enrich("loc-1", 1, 1)
	shutdown(t, p)
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("skipped")); got != skippedBefore+1 {
		t.Fatalf("skipped counter = %v; want %v", got, skippedBefore+1)
	}

	failedBefore := testutil.ToFloat64(jobsTotal.WithLabelValues("failed"))
	p = New(r, &fakeUpdater{err: errors.New("db down")})
	p.Start(context.Background())
	p.Enrich("loc-1", 1, 1)
	shutdown(t, p)
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("failed")); got != failedBefore+1 {
		t.Fatalf("failed counter = %v; want %v", got, failedBefore+1)
	}
}

func TestEnrich_CoalescesQueuedJobToLatestCoordinates(t *testing.T) {
	r := &fakeResolver{addr: "A"}
	u := &fakeUpdater{result: true}
	p := New(r, u)

	before := testutil.ToFloat64(jobsTotal.WithLabelValues("coalesced"))
	p.Enrich("loc-1", 1, 1)
	p.Enrich("loc-1", 2, 2)
	p.Enrich("loc-1", 3, 3)
	if p.Pending() != 1 {
		t.Fatalf("expected one pending record, got %d", p.Pending())
	}

	p.Start(context.Background())
	shutdown(t, p)

	calls := r.Calls()
	if len(calls) != 1 || calls[0] != (call{3, 3}) {
		t.Fatalf("expected a single call with the newest pair, got %+v", calls)
	}
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("coalesced")); got != before+2 {
		t.Fatalf("coalesced counter = %v; want %v", got, before+2)
	}
}

func TestEnrich_NewerCoordinatesWhileRunningRunAfter(t *testing.T) {
	r := &fakeResolver{addr: "A", entered: make(chan struct{}, 4), release: make(chan struct{})}
	u := &fakeUpdater{result: true}
	p := New(r, u, WithWorkers(3))
	p.Start(context.Background())

	p.Enrich("loc-1", 1, 1)
	<-r.entered // first job is running
	p.Enrich("loc-1", 2, 2)
	close(r.release)
	shutdown(t, p)

	calls := r.Calls()
	if len(calls) != 2 || calls[0] != (call{1, 1}) || calls[1] != (call{2, 2}) {
		t.Fatalf("expected sequential (1,1) then (2,2), got %+v", calls)
	}
	w := u.Writes()
	if len(w) != 2 || w[1].lat != 2 {
		t.Fatalf("newest pair must be written last: %+v", w)
	}
}

func TestEnrich_DropsWhenQueueFull(t *testing.T) {
	p := New(&fakeResolver{}, &fakeUpdater{}, WithQueueSize(1))

	before := testutil.ToFloat64(jobsTotal.WithLabelValues("dropped"))
	p.Enrich("a", 1, 1)
	p.Enrich("b", 1, 1)
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("dropped")); got != before+1 {
		t.Fatalf("dropped counter = %v; want %v", got, before+1)
	}
	if p.Pending() != 1 {
		t.Fatalf("dropped record must not be tracked")
	}

	p.Start(context.Background())
	shutdown(t, p)
}

func TestShutdown_StopsIntakeAndIsOnce(t *testing.T) {
	u := &fakeUpdater{result: true}
	p := New(&fakeResolver{addr: "A"}, u)
	p.Start(context.Background())
	shutdown(t, p)

	before := testutil.ToFloat64(jobsTotal.WithLabelValues("dropped"))
	p.Enrich("late", 1, 1)
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("dropped")); got != before+1 {
		t.Fatalf("post-shutdown Enrich must be dropped")
	}
	if err := p.Shutdown(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Shutdown err = %v; want ErrClosed", err)
	}
	if len(u.Writes()) != 0 {
		t.Fatalf("no job should run after shutdown")
	}
}

func TestShutdown_DeadlineCancelsInFlight(t *testing.T) {
	r := &fakeResolver{addr: "A", release: make(chan struct{})} // never released
	p := New(r, &fakeUpdater{}, WithJobTimeout(time.Minute))
	p.Start(context.Background())
	p.Enrich("loc-1", 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown err = %v; want DeadlineExceeded", err)
	}
}

func TestShutdown_DrainsAfterStartContextCancelled(t *testing.T) {
	// Mirrors cmd/api: workers start on the signal context, the signal fires,
	// then Shutdown drains with its own deadline.
	sigCtx, stop := context.WithCancel(context.Background())
	r := &fakeResolver{addr: "Main St 1", release: make(chan struct{})}
	u := &fakeUpdater{result: true}
	p := New(r, u, WithWorkers(2), WithJobTimeout(time.Minute))
	p.Start(sigCtx)

	for i := 0; i < 5; i++ {
		p.Enrich(fmt.Sprintf("loc-%d", i), float64(i), float64(i))
	}
	stop()
	time.Sleep(20 * time.Millisecond)
	close(r.release)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := len(u.Writes()); n != 5 {
		t.Fatalf("writes = %d; want all 5 queued jobs applied", n)
	}
}

func TestShutdown_WithoutStart(t *testing.T) {
	p := New(&fakeResolver{}, &fakeUpdater{})
	p.Enrich("queued", 1, 1)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestWorker_SurvivesPanic(t *testing.T) {
	r := &fakeResolver{panics: true, addr: "A"}
	p := New(r, &fakeUpdater{}, WithWorkers(1))
	p.Start(context.Background())
	p.Enrich("a", 1, 1)
	p.Enrich("b", 2, 2)
	shutdown(t, p)

	if n := len(r.Calls()); n != 2 {
		t.Fatalf("worker must keep going after a panic, got %d calls", n)
	}
}
