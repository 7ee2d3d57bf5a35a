package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default retry parameters.
const (
	defaultMaxAttempts = 5
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// ErrRetriesExhausted wraps the last error once every attempt has failed.
var ErrRetriesExhausted = errors.New("resilience: retries exhausted")

// RetryConfig configures [Retry].
type RetryConfig struct {
	// Name labels log messages, e.g. "postgres".
	Name string

	// MaxAttempts is the total number of calls, including the first.
	// Defaults to 5 if zero.
	MaxAttempts int

	// Backoff is the initial wait between attempts. Doubles each attempt
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Retry calls fn until it succeeds, ctx is done, or MaxAttempts calls have
// failed, waiting with exponential backoff between attempts. It returns the
// context error when cancelled and [ErrRetriesExhausted] wrapping the last
// failure otherwise.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	backoff := cfg.Backoff

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("resilience: retry succeeded", "name", cfg.Name, "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("resilience: attempt failed, retrying",
			"name", cfg.Name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", backoff,
			"err", lastErr,
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, cfg.Name, cfg.MaxAttempts, lastErr)
}
