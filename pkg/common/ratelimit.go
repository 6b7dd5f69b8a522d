package common

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to the external detector so a fast poll loop
// cannot overwhelm it. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// the given burst capacity for short spikes.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the limiter permits another call or the context is
// canceled, returning the context error in the latter case.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
