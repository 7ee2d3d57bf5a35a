package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryConfig_Defaults(t *testing.T) {
	t.Parallel()
	c := RetryConfig{}.withDefaults()
	if c.MaxAttempts != defaultMaxAttempts || c.Backoff != defaultBackoff || c.MaxBackoff != defaultMaxBackoff {
		t.Errorf("defaults = %+v", c)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	var calls int
	err := Retry(context.Background(), RetryConfig{
		Name:        "db",
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	t.Parallel()

	down := errors.New("permanently down")
	var calls int
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		return down
	})
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, down) {
		t.Errorf("err = %v, want ErrRetriesExhausted wrapping the last error", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Retry(ctx, RetryConfig{MaxAttempts: 10, Backoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
