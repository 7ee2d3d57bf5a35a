// Package planner defines the trip-planning collaborator and its
// implementations.
//
// A [Planner] turns a from/to/time request into an ordered list of
// candidate journeys. The order it returns is the order the ranking engine
// preserves for routes the rider has never used.
//
// Implementations:
//
//   - [Catalog] plans against a static network loaded from YAML.
//   - [HTTP] delegates to a remote planning service.
//
// Planners are usually wrapped in a resilience.PlannerFallback so that an
// unavailable remote service falls back to the catalog.
package planner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

var (
	// ErrNoRoutes is returned when the planner answered but found no
	// journey between the requested stops. It is an answer, not an outage.
	ErrNoRoutes = errors.New("planner: no routes found")

	// ErrInvalidRequest is returned for a request without a destination.
	ErrInvalidRequest = errors.New("planner: destination must not be empty")
)

// Request is a single planning query.
type Request struct {
	From string `json:"from"`
	To   string `json:"to"`

	// Time is the spoken or typed departure time. It may be empty and is
	// passed through uninterpreted.
	Time string `json:"time,omitempty"`

	Preferences transit.Preferences `json:"preferences"`
}

// Validate reports whether r can be planned.
func (r Request) Validate() error {
	if strings.TrimSpace(r.To) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Planner produces candidate journeys for a request.
//
// Implementations must be safe for concurrent use. A planner that finds no
// journey returns an error wrapping [ErrNoRoutes] rather than an empty slice.
type Planner interface {
	PlanJourney(ctx context.Context, req Request) ([]transit.Journey, error)
}

// Func adapts a function to [Planner].
type Func func(ctx context.Context, req Request) ([]transit.Journey, error)

// PlanJourney calls f.
func (f Func) PlanJourney(ctx context.Context, req Request) ([]transit.Journey, error) {
	return f(ctx, req)
}

// Metered wraps p so that every call is traced and records latency and
// outcome under provider name. A nil m uses [observe.DefaultMetrics].
func Metered(p Planner, m *observe.Metrics, name string) Planner {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &metered{next: p, metrics: m, name: name}
}

type metered struct {
	next    Planner
	metrics *observe.Metrics
	name    string
}

func (m *metered) PlanJourney(ctx context.Context, req Request) ([]transit.Journey, error) {
	ctx, span := observe.StartPlanSpan(ctx, m.name)
	start := time.Now()
	journeys, err := m.next.PlanJourney(ctx, req)
	m.metrics.RecordPlanning(ctx, m.name, Outcome(err), time.Since(start))
	if errors.Is(err, ErrNoRoutes) {
		observe.EndSpan(span, nil)
	} else {
		observe.EndSpan(span, err)
	}
	return journeys, err
}

// Outcome classifies a planning error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoRoutes):
		return "no_routes"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
