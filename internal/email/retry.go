package email

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// ErrTransient marks delivery failures worth retrying (5xx, rate limits,
// connection resets). Anything else fails fast.
var ErrTransient = errors.New("transient delivery failure")

// RetryConfig holds retry configuration for outbound email calls
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry executes fn with exponential backoff, retrying only transient
// failures. Job-level retries stay forbidden; this is scoped to a single
// outbound email call.
func withRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.Is(err, ErrTransient) {
			return err
		}

		if logger != nil {
			logger.Warn("email delivery attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", cfg.MaxAttempts),
				slog.String("error", err.Error()),
			)
		}

		if attempt < cfg.MaxAttempts {
			// Jitter to avoid hammering a recovering API
			jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}

			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return lastErr
}
