// Package resilience keeps journey planning available when a planning
// backend misbehaves.
//
// Each backend sits behind a [CircuitBreaker]. A [FallbackGroup] tries the
// backends in order and skips those whose breaker is open, and
// [PlannerFallback] applies that to [planner.Planner]. [Retry] covers
// start-up dependencies that may come up late, such as the database.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// documented defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, status and notifications.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker, and the number of probes allowed in flight. Default: 3.
	HalfOpenMax int

	// IsFailure reports whether err counts against the breaker. Other
	// errors pass through without changing state. Default: every error
	// except [context.Canceled].
	IsFailure func(err error) bool

	// OnStateChange, when set, is called after every transition, outside
	// the breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default: [time.Now].
	Now func() time.Time
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"consecutive_failures"`
}

// CircuitBreaker is a closed/open/half-open breaker around one backend.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(string, State, State)
	now           func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
	}
}

// transition is a state change waiting to be reported.
type transition struct{ from, to State }

// Execute runs fn unless the breaker rejects the call with
// [ErrCircuitOpen]. fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var tr *transition
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		tr = cb.moveLocked(StateHalfOpen)
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
	}
	probe = cb.state == StateHalfOpen
	if probe {
		cb.probes++
	}
	cb.mu.Unlock()
	cb.notify(tr)
	return probe, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	var tr *transition
	switch {
	case err == nil && probe:
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.halfOpenMax {
			tr = cb.moveLocked(StateClosed)
		}
	case err == nil:
		cb.failures = 0
	case cb.isFailure(err) && probe:
		if cb.state == StateHalfOpen {
			cb.failures = cb.maxFailures
			tr = cb.moveLocked(StateOpen)
		}
	case cb.isFailure(err):
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.maxFailures {
			tr = cb.moveLocked(StateOpen)
		}
	case probe && cb.state == StateHalfOpen:
		// Neutral outcome: the probe slot is handed back.
		cb.probes--
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

// moveLocked switches to state to and resets the counters that belong to
// it. Must be called with cb.mu held.
func (cb *CircuitBreaker) moveLocked(to State) *transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateHalfOpen:
		cb.probes, cb.successes = 0, 0
	case StateClosed:
		cb.failures, cb.probes, cb.successes = 0, 0, 0
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(tr *transition) {
	if tr == nil {
		return
	}
	level := slog.LevelInfo
	if tr.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: circuit breaker "+tr.to.String(),
		"name", cb.name, "from", tr.from.String())
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, tr.from, tr.to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Snapshot returns the breaker's status.
func (cb *CircuitBreaker) Snapshot() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStatus{Name: cb.name, State: cb.stateLocked().String(), Failures: cb.failures}
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.moveLocked(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	cb.notify(tr)
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
