// Package enrich back-fills addresses on freshly saved locations.
//
// Saving a location with coordinates but no address hands the record to
// Pipeline.Enrich, which returns immediately. A worker later reverse-geocodes
// the coordinates and writes the address with a conditional update that only
// lands while the record still exists, still has no address, and still
// carries the same coordinates. Each job is attempted once; failures are
// logged and counted, never surfaced to the caller that saved the record.
package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-location-backend/internal/geocode"
)

const (
	defaultWorkers    = 4
	defaultQueueSize  = 256
	defaultJobTimeout = 15 * time.Second
)

// Resolver reverse-geocodes a coordinate pair; false means "no address".
type Resolver interface {
	ResolveCoordinates(ctx context.Context, lat, lng float64) (*geocode.AddressResult, bool)
}

// Updater applies the conditional address write.
type Updater interface {
	SetAddressIfEmpty(ctx context.Context, id string, lat, lng float64, address string) (bool, error)
}

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_jobs_total",
			Help: "Enrichment jobs by outcome (applied|skipped|unresolved|failed|dropped|coalesced).",
		},
		[]string{"outcome"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrich_queue_depth",
			Help: "Records waiting for a worker.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, queueDepth)
}

// ErrClosed is returned by Shutdown when called twice.
var ErrClosed = errors.New("enrich: pipeline already shut down")

type coords struct{ lat, lng float64 }

// entry tracks one record between Enrich and the end of its job.
type entry struct {
	c       coords
	queued  bool // id is sitting in the channel
	running bool // a worker holds it
	rerun   bool // coordinates changed while running
}

// Pipeline is a bounded, coalescing worker pool.
type Pipeline struct {
	resolver   Resolver
	updater    Updater
	workers    int
	jobTimeout time.Duration
	log        zerolog.Logger

	queue chan string

	mu      sync.Mutex
	state   map[string]*entry
	closed  bool
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize bounds how many distinct records may wait for a worker.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queue = make(chan string, n)
		}
	}
}

// WithJobTimeout bounds a single job (lookup plus update).
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New builds a stopped pipeline; call Start to launch workers.
func New(resolver Resolver, updater Updater, opts ...Option) *Pipeline {
	if resolver == nil || updater == nil {
		panic("enrich: nil resolver or updater")
	}
	p := &Pipeline{
		resolver:   resolver,
		updater:    updater,
		workers:    defaultWorkers,
		jobTimeout: defaultJobTimeout,
		log:        zerolog.Nop(),
		queue:      make(chan string, defaultQueueSize),
		state:      make(map[string]*entry),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. ctx contributes values only: its cancellation
// is ignored, so a process signal context does not abort queued jobs. Running
// jobs are cancelled only when the Shutdown deadline expires.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Enrich schedules an address lookup for record id at (lat, lng).
// It never blocks: a full queue drops the job, and a record that is already
// waiting or running has its coordinates replaced by the newer pair.
func (p *Pipeline) Enrich(id string, lat, lng float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		jobsTotal.WithLabelValues("dropped").Inc()
		p.log.Warn().Str("location_id", id).Msg("enrichment dropped: pipeline shut down")
		return
	}

	c := coords{lat: lat, lng: lng}
	if e, ok := p.state[id]; ok {
		e.c = c
		if e.running {
			e.rerun = true
		}
		jobsTotal.WithLabelValues("coalesced").Inc()
		return
	}

	e := &entry{c: c, queued: true}
	if !p.offer(id) {
		jobsTotal.WithLabelValues("dropped").Inc()
		p.log.Warn().Str("location_id", id).Int("queue_cap", cap(p.queue)).Msg("enrichment dropped: queue full")
		return
	}
	p.state[id] = e
}

// offer is a non-blocking send; callers hold p.mu.
func (p *Pipeline) offer(id string) bool {
	select {
	case p.queue <- id:
		queueDepth.Set(float64(len(p.queue)))
		return true
	default:
		return false
	}
}

// Pending reports how many records are queued or running.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.state)
}

// Shutdown stops intake and waits for queued jobs to finish. If ctx expires
// first, in-flight jobs are cancelled and ctx.Err() is returned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pipeline) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", worker).Logger()

	for id := range p.queue {
		p.mu.Lock()
		queueDepth.Set(float64(len(p.queue)))
		e := p.state[id]
		e.queued = false
		e.running = true
		c := e.c
		p.mu.Unlock()

		for {
			p.process(ctx, log, id, c)

			p.mu.Lock()
			if !e.rerun {
				delete(p.state, id)
				p.mu.Unlock()
				break
			}
			// Newer coordinates arrived while this job ran; run them now so an
			// older pair never lands after a newer one.
			e.rerun = false
			c = e.c
			p.mu.Unlock()
		}
	}
}

func (p *Pipeline) process(ctx context.Context, log zerolog.Logger, id string, c coords) {
	defer func() {
		if r := recover(); r != nil {
			jobsTotal.WithLabelValues("failed").Inc()
			log.Error().Interface("panic", r).Str("location_id", id).Msg("enrichment job panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	addr, ok := p.resolver.ResolveCoordinates(ctx, c.lat, c.lng)
	if !ok {
		jobsTotal.WithLabelValues("unresolved").Inc()
		log.Debug().Str("location_id", id).Msg("no address for coordinates")
		return
	}

	applied, err := p.updater.SetAddressIfEmpty(ctx, id, c.lat, c.lng, addr.Address)
	switch {
	case err != nil:
		jobsTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("location_id", id).Msg("enrichment update failed")
	case !applied:
		jobsTotal.WithLabelValues("skipped").Inc()
		log.Debug().Str("location_id", id).Msg("enrichment skipped: record changed, deleted, or already has an address")
	default:
		jobsTotal.WithLabelValues("applied").Inc()
		log.Debug().Str("location_id", id).Msg("address enriched")
	}
}
