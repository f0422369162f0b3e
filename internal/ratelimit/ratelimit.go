// Package ratelimit bounds how fast the tool façade accepts tools/call
// requests (spec.md §6 "Rate limiting"), so a misbehaving client can't
// starve the single-task-per-session execution model.
//
// Grounded on golang.org/x/time/rate, attested across the example pack's
// service tooling as the standard token-bucket limiter for Go.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
)

// Limiter wraps a token-bucket rate limiter scoped to the whole process
// (one limiter per debugger-mcp instance, not per session).
type Limiter struct {
	rl *rate.Limiter
}

// New constructs a Limiter allowing perMinute requests per minute, with a
// burst of one-tenth that (minimum 1) so a quiet period doesn't let a
// client burst its whole minute's budget at once.
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{rl: rate.NewLimiter(rate.Inf, 1)}
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)}
}

// Allow reports whether a request may proceed right now, without blocking.
func (l *Limiter) Allow() bool {
	return l.rl.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		return dbgerr.Wrap(dbgerr.RateLimited, err, "rate limit wait cancelled")
	}
	return nil
}

// CheckOrReject returns a RateLimited dbgerr immediately (no blocking) when
// over budget, for the tool façade's request path (spec.md §6: reject, not
// queue, once the limit is hit).
func (l *Limiter) CheckOrReject() error {
	if !l.Allow() {
		return dbgerr.New(dbgerr.RateLimited, "tool call rate limit exceeded")
	}
	return nil
}
