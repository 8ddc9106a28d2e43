package service

import (
	"context"
	"math"
	"time"

	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// RetryConfig configures conflict retries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the retry policy used by background sweeps.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// WithRetry re-runs fn while it fails with CONCURRENCY_CONFLICT, backing off exponentially.
// Any other error is returned at once.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !apperrors.HasCode(lastErr, apperrors.CodeConcurrencyConflict) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt, cfg.BaseDelay, cfg.MaxDelay)):
			}
		}
	}

	return lastErr
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > max {
		delay = max
	}
	return delay
}
