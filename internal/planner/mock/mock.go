// Package mock provides a test double for the planner.Planner interface.
//
// Example:
//
//	p := &mock.Planner{Journeys: []transit.Journey{{ID: "1"}}}
//	journeys, err := p.PlanJourney(ctx, planner.Request{To: "Airport"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

var _ planner.Planner = (*Planner)(nil)

// Planner is a mock implementation of planner.Planner. Zero values return
// no journeys and a nil error.
type Planner struct {
	mu sync.Mutex

	// Journeys is returned by PlanJourney. Each call receives a copy.
	Journeys []transit.Journey

	// Err, if non-nil, is returned instead of Journeys.
	Err error

	// Block, when non-nil, makes PlanJourney wait until it is closed or the
	// context is done.
	Block chan struct{}

	calls []planner.Request
}

// PlanJourney implements planner.Planner.
func (p *Planner) PlanJourney(ctx context.Context, req planner.Request) ([]transit.Journey, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	block, err := p.Block, p.Err
	out := make([]transit.Journey, len(p.Journeys))
	for i, j := range p.Journeys {
		out[i] = j.Clone()
	}
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Calls returns a copy of every request received, in order.
func (p *Planner) Calls() []planner.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]planner.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of PlanJourney calls.
func (p *Planner) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// SetResult replaces the configured result under the lock.
func (p *Planner) SetResult(journeys []transit.Journey, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Journeys = journeys
	p.Err = err
}
