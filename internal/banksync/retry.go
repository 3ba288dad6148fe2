package banksync

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy controls WithRetry.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// RetryAll retries every error, not only RetryableError.
	RetryAll bool
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, RetryAll: true}
}

// Backoff returns the delay before retry number attempt (0-based), doubling
// from InitialDelay and capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, runs
// out of attempts or ctx is done. onRetry, if set, sees each failed attempt.
func WithRetry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error), onRetry func(attempt int, err error, wait time.Duration)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !p.RetryAll && !IsRetryable(err) {
			return zero, err
		}
		if attempt == p.MaxRetries {
			break
		}

		wait := p.Backoff(attempt)
		if re, ok := err.(*RetryableError); ok && re.RetryAfter > wait {
			wait = re.RetryAfter
		}
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", p.MaxRetries+1, lastErr)
}
