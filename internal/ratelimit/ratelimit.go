package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobscout/internal/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Range is a randomized delay window.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// pick returns a uniformly random duration in [Min, Max].
func (r Range) pick() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int64N(int64(r.Max-r.Min)+1))
}

// Pacer gates every outbound request. Each caller first sleeps a random delay
// chosen by page kind, then takes a token from the shared limiter, then holds
// one in-flight slot until it calls release.
type Pacer struct {
	delays   map[model.PageKind]Range
	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
}

// NewPacer creates a pacer. reqPerSec <= 0 disables the token bucket.
// All workers of a run must share one Pacer.
func NewPacer(delays map[model.PageKind]Range, reqPerSec float64, burst, maxInFlight int) *Pacer {
	limit := rate.Inf
	if reqPerSec > 0 {
		limit = rate.Limit(reqPerSec)
	}
	if burst < 1 {
		burst = 1
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Pacer{
		delays:   delays,
		limiter:  rate.NewLimiter(limit, burst),
		inFlight: semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Acquire blocks until a request of the given kind may be sent. The returned
// release func must be called once the response has been read.
func (p *Pacer) Acquire(ctx context.Context, kind model.PageKind) (release func(), err error) {
	if d := p.delays[kind].pick(); d > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pacing %s request: %w", kind, ctx.Err())
		case <-time.After(d):
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait for %s request: %w", kind, err)
	}

	if err := p.inFlight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for in-flight slot: %w", err)
	}
	return func() { p.inFlight.Release(1) }, nil
}
