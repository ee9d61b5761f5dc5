// Package retry runs an operation with bounded exponential backoff, retrying
// only failures that services.Retryable classifies as transient.
package retry

import (
	"context"
	"time"

	"parcel/internal/services"
)

// Policy bounds the number of attempts and the delay between them.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable overrides the default classification when set.
	Retryable func(error) bool
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do invokes op until it succeeds, returns a terminal error, exhausts the
// attempt budget, or ctx ends. The last error from op is returned.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = services.Retryable
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || !retryable(lastErr) {
			break
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, lastErr)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		} else if ctx.Err() != nil {
			return lastErr
		}
		delay = nextDelay(delay, policy.MaxDelay)
	}
	return lastErr
}

func nextDelay(current, limit time.Duration) time.Duration {
	next := current * 2
	if limit > 0 && next > limit {
		return limit
	}
	return next
}
