package crawler

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy decides what happens after a failed attempt and how long to wait.
type RetryPolicy interface {
	Decide(err error, attempt int) Verdict
	Backoff(attempt int) time.Duration
}

// ErrPermanent marks failures that no retry can fix, such as a malformed locator.
var ErrPermanent = errors.New("permanent failure")

// LinearRetryPolicy waits 2*attempt units between attempts.
type LinearRetryPolicy struct {
	maxAttempts int
	unit        time.Duration
}

// NewLinearRetryPolicy builds a policy. Non-positive values fall back to 3 attempts of 1s units.
func NewLinearRetryPolicy(maxAttempts int, unit time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if unit < 0 {
		unit = time.Second
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, unit: unit}
}

// MaxAttempts returns the attempt budget.
func (p *LinearRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// Decide classifies err after the given 1-based attempt.
// A canceled caller stops the scan; per-attempt deadlines stay retryable.
func (p *LinearRetryPolicy) Decide(err error, attempt int) Verdict {
	switch {
	case err == nil:
		return Proceed
	case errors.Is(err, context.Canceled):
		return StopScan
	case errors.Is(err, ErrPermanent):
		return SkipItem
	case attempt >= p.maxAttempts:
		return SkipItem
	default:
		return Retryable
	}
}

// Backoff returns the wait before the attempt following attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(2*attempt) * p.unit
}
