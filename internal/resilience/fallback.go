package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// provider in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// IsFinal reports whether err is an authoritative answer that must be
	// returned to the caller instead of trying the next provider (for
	// example "no routes between these stops"). Default: none are final.
	IsFinal func(err error) bool

	// OnError, when set, is called for every provider error, including
	// open-circuit rejections.
	OnError func(provider string, err error)
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Entries are registered during construction; FallbackGroup is safe for
// concurrent use once AddFallback calls are done.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	if fg.cfg.IsFinal != nil {
		// Final answers are successful calls as far as the breaker is
		// concerned.
		isFinal, base := fg.cfg.IsFinal, cbCfg.IsFailure
		if base == nil {
			base = defaultIsFailure
		}
		cbCfg.IsFailure = func(err error) bool { return !isFinal(err) && base(err) }
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Status reports each entry's breaker state in registration order.
func (fg *FallbackGroup[T]) Status() []BreakerStatus {
	out := make([]BreakerStatus, len(fg.entries))
	for i := range fg.entries {
		out[i] = fg.entries[i].breaker.Snapshot()
	}
	return out
}

// Available reports whether at least one entry's breaker is not open.
func (fg *FallbackGroup[T]) Available() bool {
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped with
// the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds
// or returns a final error, returning both the result value and error. This is
// a package-level function because Go does not support method-level type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if fg.cfg.IsFinal != nil && fg.cfg.IsFinal(err) {
			return zero, err
		}
		if fg.cfg.OnError != nil {
			fg.cfg.OnError(entry.name, err)
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.Warn("resilience: provider failed, trying next",
				"provider", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
