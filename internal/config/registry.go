package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/wayfinder/internal/planner"
)

// ErrProviderNotRegistered is returned by [Registry.CreatePlanner] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// PlannerFactory builds a planner from its config entry.
type PlannerFactory func(ProviderEntry) (planner.Planner, error)

// Registry maps planner provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	planners map[string]PlannerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{planners: make(map[string]PlannerFactory)}
}

// RegisterPlanner registers a planner factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterPlanner(name string, factory PlannerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planners[name] = factory
}

// CreatePlanner instantiates the planner registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory is found.
func (r *Registry) CreatePlanner(entry ProviderEntry) (planner.Planner, error) {
	r.mu.RLock()
	f, ok := r.planners[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: planner %q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// Names returns the registered planner names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.planners))
	for n := range r.planners {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
