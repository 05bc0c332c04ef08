// Package ratelimiter throttles requests against remote image backends.
//
// A Limiter enforces two token buckets: one counting requests and one
// counting bytes. Either can be disabled by configuring a zero rate.
package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Config describes the limits of a Limiter. Zero values disable a limit.
type Config struct {
	// RequestsPerSecond is the sustained request rate
	RequestsPerSecond uint

	// Burst is how many requests may be issued at once. Defaults to
	// RequestsPerSecond.
	Burst uint

	// BytesPerSecond caps sustained transfer volume
	BytesPerSecond uint
}

// Limiter is safe for concurrent use.
type Limiter struct {
	requests *rate.Limiter
	bytes    *rate.Limiter
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		requests: rate.NewLimiter(rate.Inf, 0),
		bytes:    rate.NewLimiter(rate.Inf, 0),
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = cfg.RequestsPerSecond
		}
		l.requests = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(burst))
	}

	if cfg.BytesPerSecond > 0 {
		l.bytes = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), int(cfg.BytesPerSecond))
	}
	return l
}

// Unlimited returns a Limiter that never waits.
func Unlimited() *Limiter {
	return New(Config{})
}

// Acquire blocks until one request transferring n bytes may proceed, or
// ctx is done. Transfers larger than the byte bucket are charged in
// bucket-sized slices.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if err := l.requests.Wait(ctx); err != nil {
		return fmt.Errorf("request rate wait: %w", err)
	}

	if l.bytes.Limit() == rate.Inf {
		return nil
	}
	burst := l.bytes.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := l.bytes.WaitN(ctx, chunk); err != nil {
			return fmt.Errorf("byte rate wait: %w", err)
		}
		n -= chunk
	}
	return nil
}
