// Package ratelimit implements a deterministic fixed-window request throttle
// keyed by caller identity.
//
// Each identity owns a counter and a reset instant. The window is anchored at
// the first request after the previous window ended, so a caller that sends
// Max requests in a burst waits exactly Window from that first request before
// it is admitted again.
//
// Notes:
//   - State is process-local. Separate replicas keep separate counters, so the
//     effective limit across N instances is N*Max per window.
//   - Expired counters are removed by a periodic sweep (Start), independent of
//     traffic. An expired counter that has not been swept yet is treated as
//     absent by Check.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

// Policy is a fixed-window budget: at most Max requests per Window.
type Policy struct {
	Window time.Duration
	Max    int
}

// normalize coerces invalid policies to the strictest usable one.
func (p Policy) normalize() Policy {
	if p.Max < 1 || p.Window <= 0 {
		return Policy{Window: time.Second, Max: 1}
	}
	return p
}

// Decision is the outcome of a single Check.
//
// ResetAt is the instant the current window ends. RetryAfter is only set on
// rejection and is always positive.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type counter struct {
	count   int
	resetAt time.Time
}

// Limiter is a mutex-guarded table of per-identity counters.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time

	sweepEvery time.Duration
	started    bool
	stopOnce   sync.Once
	stop       chan struct{}
	done       chan struct{}
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock injects the time source. Tests use it to step through windows.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSweepInterval sets how often Start removes expired counters.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepEvery = d
		}
	}
}

// New returns an empty Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		counters:   make(map[string]*counter),
		now:        time.Now,
		sweepEvery: defaultSweepInterval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check performs an atomic check-and-increment for key under policy p.
//
//   - no counter, or the window has ended: start a new window (count=1).
//   - count < Max: increment and admit.
//   - count >= Max: reject without touching the counter.
func (l *Limiter) Check(key string, p Policy) Decision {
	p = p.normalize()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{count: 1, resetAt: now.Add(p.Window)}
		l.counters[key] = c
		return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max - 1, ResetAt: c.resetAt}
	}

	if c.count < p.Max {
		c.count++
		return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max - c.count, ResetAt: c.resetAt}
	}

	return Decision{
		Allowed:    false,
		Limit:      p.Max,
		Remaining:  0,
		ResetAt:    c.resetAt,
		RetryAfter: c.resetAt.Sub(now),
	}
}

// Sweep deletes every counter whose window has ended and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for k, c := range l.counters {
		if !now.Before(c.resetAt) {
			delete(l.counters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked counters, expired ones included.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Start runs Sweep every sweep interval until ctx is done or Stop is called.
// It returns immediately; the sweeper runs in its own goroutine.
func (l *Limiter) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		t := time.NewTicker(l.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}

// Stop terminates the sweeper started by Start and waits for it to exit.
// Calling Stop without Start, or more than once, is safe.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.done
	}
}
