package respond

import (
	"context"
	"time"

	"argus/core"
)

// RetryConfig bounds executor retries for transient dependency failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig keeps containment fast: a couple of quick retries,
// then the action is marked failed and the pipeline moves on.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// withRetry runs fn, retrying only transient errors with exponential
// backoff. Validation and not-found errors are terminal on first sight.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var err error
	delay := cfg.BaseDelay

	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !core.IsTransient(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
