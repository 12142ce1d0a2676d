package resilience

import (
	"context"
	"errors"
	"math"
	"time"

	"ridesync/internal/config"
)

// RetryPolicy controls how many times an operation is attempted and
// how long to wait between attempts. Immutable per call; callers may
// override it per request.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig builds the default policy from configuration.
func PolicyFromConfig(cfg *config.ResilienceConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.BaseDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// Backoff returns the delay before the retry following the given
// zero-based attempt: min(base * factor^attempt, max). Non-decreasing
// in the attempt number for factor > 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// RetryDecider decides whether a failed attempt should be retried.
// Keeping this as an injectable strategy keeps the manager logic
// testable independent of any specific predicate.
type RetryDecider interface {
	ShouldRetry(err error, attempt int) bool
}

// RetryDeciderFunc adapts a plain function to RetryDecider.
type RetryDeciderFunc func(err error, attempt int) bool

func (f RetryDeciderFunc) ShouldRetry(err error, attempt int) bool {
	return f(err, attempt)
}

// DefaultRetryDecider retries on network-level failures, 5xx, 408 and
// 429. Everything else stops immediately.
func DefaultRetryDecider() RetryDecider {
	return RetryDeciderFunc(func(err error, attempt int) bool {
		var ne *NetworkError
		if errors.As(err, &ne) {
			return true
		}

		switch status := HTTPStatus(err); {
		case status >= 500:
			return true
		case status == 408 || status == 429:
			return true
		default:
			return false
		}
	})
}

// Retry runs op up to MaxRetries+1 times, sleeping the policy backoff
// between attempts. Retries are strictly sequential; the context
// cancels both the operation and the waits. No circuit breaking or
// offline queuing is involved, so other services can wrap arbitrary
// operations with backoff semantics.
func Retry(ctx context.Context, policy RetryPolicy, decider RetryDecider, op func(ctx context.Context) error) error {
	if decider == nil {
		decider = DefaultRetryDecider()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !decider.ShouldRetry(lastErr, attempt) || attempt == policy.MaxRetries {
			break
		}

		select {
		case <-time.After(policy.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
