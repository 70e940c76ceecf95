package tandang

import (
	"golang.org/x/time/rate"
)

// RateLimiter applies a client-side token bucket ahead of every transport
// attempt. A denied permit surfaces as a RateLimit error without consuming
// a retry attempt.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst; returns nil (no limiting) if args are invalid.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow reports whether one token can be consumed now. A nil limiter always
// allows.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}

// Tokens reports the currently available tokens, for metrics.
func (rl *RateLimiter) Tokens() float64 {
	if rl == nil {
		return 0
	}
	return rl.limiter.Tokens()
}
