package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy retries model calls that fail with ErrTransientFailure using
// exponential backoff with jitter.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Each further retry
	// doubles it.
	BaseDelay time.Duration
}

// NewRetryPolicy builds a policy from configuration values, replacing
// invalid ones with the defaults (3 retries, 2 seconds).
func NewRetryPolicy(maxRetries, delaySeconds int) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if delaySeconds < 1 {
		delaySeconds = 2
	}
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Duration(delaySeconds) * time.Second}
}

// Backoff returns the delay before retry number attempt (0-based):
// base * 2^attempt * (0.5 + rand(0, 0.5)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(backoff * jitter)
}

// Do calls fn until it succeeds, fails with a non-transient error, or the
// retries are exhausted.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.InfoContext(ctx, "model call succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}

		if !errors.Is(err, ErrTransientFailure) {
			return err
		}

		if attempt >= p.MaxRetries {
			logger.WarnContext(ctx, "maximum retry attempts reached",
				"max_retries", p.MaxRetries,
				"error", err)
			return fmt.Errorf("exceeded maximum retry attempts (%d): %w", p.MaxRetries, err)
		}

		delay := p.Backoff(attempt)
		logger.InfoContext(ctx, "retrying model call after delay",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		}
	}
}
