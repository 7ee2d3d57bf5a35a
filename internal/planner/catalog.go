package planner

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Placeholders substituted with the request's endpoints in catalog steps.
const (
	PlaceholderFrom = "{from}"
	PlaceholderTo   = "{to}"
)

// wheelchairLabel marks a route as step-free in [transit.Journey.Accessibility].
const wheelchairLabel = "wheelchair accessible"

// NetworkFile is the top-level structure of a transit network YAML file.
//
// Example:
//
//	stops:
//	  - Central Station
//	  - Airport
//	routes:
//	  - id: "3"
//	    summary: Metro Red Line direct
//	    duration_minutes: 20
//	    transfers: 0
//	    accessibility: Wheelchair accessible
//	    departure_time: "2:40 PM"
//	    arrival_time: "3:00 PM"
//	    steps:
//	      - {mode: Metro, route: Red Line, from: "{from}", to: "{to}", duration_minutes: 20}
type NetworkFile struct {
	// Stops lists named stops riders may say. Stops referenced by route
	// steps are added automatically.
	Stops []string `yaml:"stops"`

	// Routes are the candidate journeys, in the order they are offered.
	Routes []transit.Journey `yaml:"routes"`
}

// Validate reports every problem with the network.
func (n *NetworkFile) Validate() error {
	var errs []string
	seen := make(map[transit.JourneyKey]bool, len(n.Routes))
	for i, r := range n.Routes {
		switch {
		case r.ID == "":
			errs = append(errs, fmt.Sprintf("routes[%d]: id must not be empty", i))
		case seen[r.Key()]:
			errs = append(errs, fmt.Sprintf("routes[%d]: duplicate route %q", i, r.ID))
		}
		seen[r.Key()] = true
		if r.DurationMinutes < 0 || r.Transfers < 0 {
			errs = append(errs, fmt.Sprintf("routes[%d]: duration and transfers must not be negative", i))
		}
		if len(r.Steps) == 0 {
			errs = append(errs, fmt.Sprintf("routes[%d]: at least one step is required", i))
		}
		for j, s := range r.Steps {
			if s.DurationMinutes < 0 {
				errs = append(errs, fmt.Sprintf("routes[%d].steps[%d]: duration must not be negative", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("planner: invalid network: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadNetworkFile reads and parses a network YAML file from disk.
func LoadNetworkFile(path string) (*NetworkFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("planner: open network file %q: %w", path, err)
	}
	defer f.Close()

	nf, err := LoadNetworkFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("planner: parse network file %q: %w", path, err)
	}
	return nf, nil
}

// LoadNetworkFromReader parses network YAML from r and validates it.
func LoadNetworkFromReader(r io.Reader) (*NetworkFile, error) {
	var nf NetworkFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&nf); err != nil {
		return nil, fmt.Errorf("planner: decode network yaml: %w", err)
	}
	if err := nf.Validate(); err != nil {
		return nil, err
	}
	return &nf, nil
}

// DefaultNetwork returns the built-in demonstration network.
func DefaultNetwork() *NetworkFile {
	return &NetworkFile{
		Stops: []string{"Central Station", "Airport", "City Hall", "General Hospital", "University", "Riverside Park"},
		Routes: []transit.Journey{
			{
				ID: "1", Summary: "Bus 12 → Metro Blue Line",
				DurationMinutes: 35, Transfers: 1, Accessibility: "Wheelchair accessible",
				DepartureTime: "2:30 PM", ArrivalTime: "3:05 PM",
				Steps: []transit.Step{
					{Mode: "Bus", Route: "12", From: PlaceholderFrom, To: "Metro Station", DurationMinutes: 15},
					{Mode: "Metro", Route: "Blue Line", From: "Metro Station", To: PlaceholderTo, DurationMinutes: 20},
				},
			},
			{
				ID: "2", Summary: "Bus 32 → Walk",
				DurationMinutes: 45, Transfers: 1, Accessibility: "Limited accessibility",
				DepartureTime: "2:15 PM", ArrivalTime: "3:00 PM",
				Steps: []transit.Step{
					{Mode: "Bus", Route: "32", From: PlaceholderFrom, To: "Park", DurationMinutes: 25},
					{Mode: "Walk", Route: "N/A", From: "Park", To: PlaceholderTo, DurationMinutes: 20},
				},
			},
			{
				ID: "3", Summary: "Metro Red Line direct",
				DurationMinutes: 20, Transfers: 0, Accessibility: "Wheelchair accessible",
				DepartureTime: "2:40 PM", ArrivalTime: "3:00 PM",
				Steps: []transit.Step{
					{Mode: "Metro", Route: "Red Line", From: PlaceholderFrom, To: PlaceholderTo, DurationMinutes: 20},
				},
			},
			{
				ID: "4", Summary: "Bus 15 Express",
				DurationMinutes: 30, Transfers: 0, Accessibility: "Wheelchair accessible",
				DepartureTime: "2:25 PM", ArrivalTime: "2:55 PM",
				Steps: []transit.Step{
					{Mode: "Bus", Route: "15 Express", From: PlaceholderFrom, To: PlaceholderTo, DurationMinutes: 30},
				},
			},
		},
	}
}

// Catalog plans journeys from a static network. Every route connects any
// pair of stops; the request's endpoints replace the placeholders in each
// step. Catalog is safe for concurrent use and its network can be swapped
// at runtime with [Catalog.SetNetwork].
type Catalog struct {
	mu      sync.RWMutex
	network *NetworkFile
	stops   []string
}

var _ Planner = (*Catalog)(nil)

// NewCatalog creates a [Catalog] over nf. A nil nf uses [DefaultNetwork].
func NewCatalog(nf *NetworkFile) *Catalog {
	c := &Catalog{}
	c.SetNetwork(nf)
	return c
}

// SetNetwork replaces the network. A nil nf restores [DefaultNetwork].
func (c *Catalog) SetNetwork(nf *NetworkFile) {
	if nf == nil {
		nf = DefaultNetwork()
	}
	stops := collectStops(nf)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = nf
	c.stops = stops
}

// Stops returns every named stop in the network, sorted.
func (c *Catalog) Stops() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.stops)
}

// PlanJourney implements [Planner].
//
// With Preferences.Wheelchair only wheelchair-accessible routes are
// returned. With Preferences.FewerTransfers routes are stably ordered by
// transfer count. Other preferences do not affect the catalog.
func (c *Catalog) PlanJourney(ctx context.Context, req Request) ([]transit.Journey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	routes := c.network.Routes
	c.mu.RUnlock()

	out := make([]transit.Journey, 0, len(routes))
	for _, r := range routes {
		if req.Preferences.Wheelchair && !strings.Contains(strings.ToLower(r.Accessibility), wheelchairLabel) {
			continue
		}
		out = append(out, substitute(r, req.From, req.To))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("planner: catalog %s to %s: %w", req.From, req.To, ErrNoRoutes)
	}
	if req.Preferences.FewerTransfers {
		slices.SortStableFunc(out, func(a, b transit.Journey) int {
			return cmp.Compare(a.Transfers, b.Transfers)
		})
	}
	return out, nil
}

func substitute(j transit.Journey, from, to string) transit.Journey {
	j = j.Clone()
	for i := range j.Steps {
		j.Steps[i].From = replaceEndpoint(j.Steps[i].From, from, to)
		j.Steps[i].To = replaceEndpoint(j.Steps[i].To, from, to)
	}
	return j
}

func replaceEndpoint(s, from, to string) string {
	switch s {
	case PlaceholderFrom:
		return from
	case PlaceholderTo:
		return to
	}
	return s
}

func collectStops(nf *NetworkFile) []string {
	set := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || s == PlaceholderFrom || s == PlaceholderTo {
			return
		}
		set[s] = struct{}{}
	}
	for _, s := range nf.Stops {
		add(s)
	}
	for _, r := range nf.Routes {
		for _, st := range r.Steps {
			add(st.From)
			add(st.To)
		}
	}
	stops := make([]string, 0, len(set))
	for s := range set {
		stops = append(stops, s)
	}
	slices.Sort(stops)
	return stops
}
