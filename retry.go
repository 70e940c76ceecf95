package tandang

import (
	"context"
	"errors"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/tandang/internal/backoff"
)

// RetryPolicy decides whether a failed attempt should be retried and after
// what delay. Implementations must be pure apart from logging: all state is
// passed in.
type RetryPolicy interface {
	// ShouldRetry inspects the outcome of an attempt. resp is nil for
	// connection-level failures; err is nil for HTTP-level failures.
	ShouldRetry(resp *Response, err error, attempt int) (time.Duration, bool)
}

// DefaultRetryableStatuses is the set of HTTP status codes retried by the
// default policy. Any other 4xx is a permanent failure.
var DefaultRetryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// DefaultRetryPolicy retries connection-level failures and a configurable
// set of status codes, backing off by baseDelay * multiplier^attempt. The
// default multiplier of 4 is intentionally steeper than classic doubling to
// shed load quickly from an overloaded backend.
type DefaultRetryPolicy struct {
	maxRetries        int
	baseDelay         time.Duration
	maxDelay          time.Duration
	multiplier        float64
	jitter            float64
	retryableStatuses map[int]bool
	calculator        *internalbackoff.Calculator
}

// NewDefaultRetryPolicy creates a policy with the default retryable status
// set and the steep exponential backoff ladder (1s, 4s, 16s for base 1s).
func NewDefaultRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		maxRetries:        maxRetries,
		baseDelay:         baseDelay,
		maxDelay:          maxDelay,
		multiplier:        4.0,
		jitter:            0,
		retryableStatuses: DefaultRetryableStatuses,
		calculator:        internalbackoff.GetExponentialCalculator(),
	}
}

// WithRetryableStatuses replaces the retryable status set.
func (p *DefaultRetryPolicy) WithRetryableStatuses(statuses ...int) *DefaultRetryPolicy {
	set := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	p.retryableStatuses = set
	return p
}

// WithJitter adds uniform jitter (0.0 to 1.0) to computed delays.
func (p *DefaultRetryPolicy) WithJitter(jitter float64) *DefaultRetryPolicy {
	p.jitter = jitter
	return p
}

// ShouldRetry implements the RetryPolicy interface. Cancelled requests are
// never retried, even when the underlying error looks superficially
// retryable (a network error racing a cancel).
func (p *DefaultRetryPolicy) ShouldRetry(resp *Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	if err != nil {
		if IsCancelled(err) || errors.Is(err, context.Canceled) {
			return 0, false
		}
		// Connection-level failure: timeout, DNS, refused, reset.
		return p.DelayFor(attempt), true
	}

	if resp != nil && p.retryableStatuses[resp.StatusCode] {
		return p.DelayFor(attempt), true
	}

	return 0, false
}

// DelayFor returns the backoff delay for the given zero-based attempt.
func (p *DefaultRetryPolicy) DelayFor(attempt int) time.Duration {
	return p.calculator.Calculate(attempt, p.baseDelay, p.maxDelay, p.multiplier, p.jitter)
}

// MaxRetries returns the configured retry ceiling.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.maxRetries
}
