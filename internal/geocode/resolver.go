package geocode

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultStoreTimeout = 2 * time.Second
	defaultMinQueryLen  = 3
)

// Resolver answers forward and reverse lookups cache-first.
//
// Lookup order is L1 (LocalCache, optional), then L2 (Store, optional), then
// the provider. A Store read error degrades to a miss. Concurrent misses for
// the same key share one provider call and one cache write; that call is
// bounded by the resolver timeout, not by any single caller's context.
type Resolver struct {
	provider Provider
	store    Store
	local    *LocalCache
	timeout  time.Duration
	minLen   int
	log      zerolog.Logger

	storeTimeout time.Duration

	group  singleflight.Group
	writes sync.WaitGroup
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithTimeout bounds every provider call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithStoreTimeout bounds every Store read and write. Non-positive values are
// ignored.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// WithLocalCache puts an in-process layer in front of the Store.
func WithLocalCache(c *LocalCache) Option {
	return func(r *Resolver) { r.local = c }
}

// WithMinQueryLen sets the shortest normalized query (in runes) that is sent
// to the provider.
func WithMinQueryLen(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.minLen = n
		}
	}
}

// WithLogger sets the logger used for degraded lookups.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver wires provider and store. store may be nil (no durable cache);
// a nil provider is a programming error and panics.
func NewResolver(provider Provider, store Store, opts ...Option) *Resolver {
	if provider == nil {
		panic("geocode: nil provider")
	}
	r := &Resolver{
		provider:     provider,
		store:        store,
		timeout:      defaultTimeout,
		storeTimeout: defaultStoreTimeout,
		minLen:       defaultMinQueryLen,
		log:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveAddress returns coordinates for free-text address text, or false
// when the text is too short, the provider finds nothing, or the provider
// fails for any reason.
func (r *Resolver) ResolveAddress(ctx context.Context, text string) (*Coordinates, bool) {
	key := NormalizeQuery(text)
	if utf8.RuneCountInString(key) < r.minLen {
		return nil, false
	}

	ctx, span := otel.Tracer("geocode").Start(ctx, "Resolver.ResolveAddress")
	defer span.End()

	if c, ok := r.cachedForward(ctx, key); ok {
		span.SetAttributes(attribute.Bool("geocode.cache_hit", true))
		return c, true
	}
	span.SetAttributes(attribute.Bool("geocode.cache_hit", false))

	ch := r.group.DoChan("f:"+key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		res, err := r.provider.Forward(cctx, key)
		providerLatency.WithLabelValues("forward").Observe(time.Since(start).Seconds())
		if err != nil {
			providerCalls.WithLabelValues("forward", outcome(err)).Inc()
			r.log.Warn().Err(err).Str("kind", "forward").Msg("geocode provider call failed")
			return nil, nil
		}
		if len(res) == 0 {
			providerCalls.WithLabelValues("forward", "empty").Inc()
			return nil, nil
		}
		providerCalls.WithLabelValues("forward", "ok").Inc()

		first := res[0]
		if r.local != nil {
			r.local.SetForward(key, first)
		}
		r.storeAsync(ctx, "forward", func(sctx context.Context) error {
			return r.store.PutForward(sctx, key, first)
		})
		return &first, nil
	})

	var v any
	select {
	case res := <-ch:
		v = res.Val
	case <-ctx.Done():
		// The shared call keeps running and still fills the cache.
		return nil, false
	}

	c, _ := v.(*Coordinates)
	if c == nil {
		return nil, false
	}
	out := *c
	return &out, true
}

// ResolveCoordinates returns the address at (lat, lng), or false when the pair
// is out of range, the provider finds nothing, or the provider fails.
func (r *Resolver) ResolveCoordinates(ctx context.Context, lat, lng float64) (*AddressResult, bool) {
	if !ValidCoordinates(lat, lng) {
		return nil, false
	}
	key := CoordKey(lat, lng)

	ctx, span := otel.Tracer("geocode").Start(ctx, "Resolver.ResolveCoordinates")
	defer span.End()

	if a, ok := r.cachedReverse(ctx, key); ok {
		span.SetAttributes(attribute.Bool("geocode.cache_hit", true))
		return a, true
	}
	span.SetAttributes(attribute.Bool("geocode.cache_hit", false))

	ch := r.group.DoChan("r:"+key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		res, err := r.provider.Reverse(cctx, lat, lng)
		providerLatency.WithLabelValues("reverse").Observe(time.Since(start).Seconds())
		if err != nil {
			providerCalls.WithLabelValues("reverse", outcome(err)).Inc()
			r.log.Warn().Err(err).Str("kind", "reverse").Msg("geocode provider call failed")
			return nil, nil
		}
		if len(res) == 0 || res[0].Address == "" {
			providerCalls.WithLabelValues("reverse", "empty").Inc()
			return nil, nil
		}
		providerCalls.WithLabelValues("reverse", "ok").Inc()

		first := res[0]
		if r.local != nil {
			r.local.SetReverse(key, first)
		}
		r.storeAsync(ctx, "reverse", func(sctx context.Context) error {
			return r.store.PutReverse(sctx, key, first)
		})
		return &first, nil
	})

	var v any
	select {
	case res := <-ch:
		v = res.Val
	case <-ctx.Done():
		// The shared call keeps running and still fills the cache.
		return nil, false
	}

	a, _ := v.(*AddressResult)
	if a == nil {
		return nil, false
	}
	out := *a
	return &out, true
}

// Wait blocks until background cache writes have finished.
func (r *Resolver) Wait() {
	r.writes.Wait()
}

// storeAsync runs put off the request path, detached from ctx's cancellation
// and bounded by the store timeout.
func (r *Resolver) storeAsync(ctx context.Context, kind string, put func(context.Context) error) {
	if r.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		defer cancel()
		if err := put(sctx); err != nil {
			r.log.Warn().Err(err).Str("kind", kind).Msg("geocode cache write failed")
		}
	}()
}

func (r *Resolver) cachedForward(ctx context.Context, key string) (*Coordinates, bool) {
	if r.local != nil {
		if c, ok := r.local.GetForward(key); ok {
			cacheLookups.WithLabelValues("forward", "l1", "hit").Inc()
			return &c, true
		}
		cacheLookups.WithLabelValues("forward", "l1", "miss").Inc()
	}
	if r.store == nil {
		return nil, false
	}
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	c, ok, err := r.store.GetForward(sctx, key)
	switch {
	case err != nil:
		cacheLookups.WithLabelValues("forward", "l2", "error").Inc()
		r.log.Warn().Err(err).Str("kind", "forward").Msg("geocode cache read failed; treating as miss")
		return nil, false
	case !ok:
		cacheLookups.WithLabelValues("forward", "l2", "miss").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues("forward", "l2", "hit").Inc()
	if r.local != nil {
		r.local.SetForward(key, *c)
	}
	return c, true
}

func (r *Resolver) cachedReverse(ctx context.Context, key string) (*AddressResult, bool) {
	if r.local != nil {
		if a, ok := r.local.GetReverse(key); ok {
			cacheLookups.WithLabelValues("reverse", "l1", "hit").Inc()
			return &a, true
		}
		cacheLookups.WithLabelValues("reverse", "l1", "miss").Inc()
	}
	if r.store == nil {
		return nil, false
	}
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	a, ok, err := r.store.GetReverse(sctx, key)
	switch {
	case err != nil:
		cacheLookups.WithLabelValues("reverse", "l2", "error").Inc()
		r.log.Warn().Err(err).Str("kind", "reverse").Msg("geocode cache read failed; treating as miss")
		return nil, false
	case !ok:
		cacheLookups.WithLabelValues("reverse", "l2", "miss").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues("reverse", "l2", "hit").Inc()
	if r.local != nil {
		r.local.SetReverse(key, *a)
	}
	return a, true
}
