// Package ratelimit provides the Executor's rate manager (spec.md §4.4):
// a non-blocking Allow check, fatal rather than blocking on exhaustion.
// Two backends are provided: a single-process LocalLimiter (the default,
// grounded on golang.org/x/time/rate) and a RedisLimiter for fleets of
// Executor processes that must share one platform-side rate budget, which
// keeps a fixed hourly-window counter in Redis via one atomic Lua script.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is the Executor's rate-manager seam. Allow must never block —
// the spec requires rate exhaustion to surface as a fatal error, not a
// wait (confirmed against original_source's RateLimitManager.
// can_make_request(), itself a synchronous boolean check).
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter wraps golang.org/x/time/rate.Limiter for single-process rate
// limiting. key is ignored — a LocalLimiter only ever limits its own
// process's calls.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter builds a LocalLimiter allowing perHour platform calls per
// hour, spread over a burst-sized token bucket. perHour <= 0 disables
// limiting (rate.Inf).
func NewLocalLimiter(perHour int) *LocalLimiter {
	limit := rate.Inf
	burst := 1
	if perHour > 0 {
		limit = rate.Limit(float64(perHour) / 3600)
		burst = perHour
	}
	return &LocalLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Allow never blocks; it reports whether a token was available right now.
func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}
