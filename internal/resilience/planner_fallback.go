package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

// PlannerFallback implements [planner.Planner] with automatic failover across
// planning backends. Each backend has its own circuit breaker. A backend
// that answers with [planner.ErrNoRoutes] or rejects the request as invalid
// has answered: the error is returned as is and the breaker stays closed.
type PlannerFallback struct {
	group *FallbackGroup[planner.Planner]
}

var _ planner.Planner = (*PlannerFallback)(nil)

// NewPlannerFallback creates a [PlannerFallback] with primary as the
// preferred backend. When m is non-nil backend errors and breaker
// transitions are recorded on it.
func NewPlannerFallback(primary planner.Planner, primaryName string, cbCfg CircuitBreakerConfig, m *observe.Metrics) *PlannerFallback {
	cfg := FallbackConfig{
		CircuitBreaker: cbCfg,
		IsFinal:        isFinalPlanningError,
	}
	if m != nil {
		cfg.OnError = func(provider string, err error) {
			kind := planner.Outcome(err)
			if errors.Is(err, ErrCircuitOpen) {
				kind = "circuit_open"
			}
			m.RecordProviderError(context.Background(), provider, kind)
		}
		cfg.CircuitBreaker.OnStateChange = func(provider string, _, to State) {
			m.RecordBreakerTransition(context.Background(), provider, to.String())
		}
	}
	return &PlannerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

func isFinalPlanningError(err error) bool {
	return errors.Is(err, planner.ErrNoRoutes) || errors.Is(err, planner.ErrInvalidRequest)
}

// AddFallback registers an additional planner as a fallback.
func (f *PlannerFallback) AddFallback(name string, p planner.Planner) {
	f.group.AddFallback(name, p)
}

// PlanJourney asks the first healthy backend for journeys.
func (f *PlannerFallback) PlanJourney(ctx context.Context, req planner.Request) ([]transit.Journey, error) {
	return ExecuteWithResult(f.group, func(p planner.Planner) ([]transit.Journey, error) {
		return p.PlanJourney(ctx, req)
	})
}

// Status reports the breaker state of every backend.
func (f *PlannerFallback) Status() []BreakerStatus {
	return f.group.Status()
}

// Available reports whether any backend can currently be tried.
func (f *PlannerFallback) Available() bool {
	return f.group.Available()
}
