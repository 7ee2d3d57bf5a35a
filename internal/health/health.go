// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every registered [Checker] concurrently. A failing critical check
// makes the service unready (503); a failing optional check, such as the
// journey planner while all of its backends are tripped, reports
// "degraded" with 200 because tickets and the wallet still work.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a check that sets no Timeout of its own.
const DefaultTimeout = 5 * time.Second

// Overall and per-check status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker probes one dependency.
type Checker struct {
	// Name keys the check in the response, e.g. "store".
	Name string

	// Check returns nil when the dependency is healthy. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional checks degrade readiness instead of failing it.
	Optional bool

	// Timeout overrides [DefaultTimeout].
	Timeout time.Duration
}

// Pinger is satisfied by the stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck is a critical check on p.Ping.
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// ErrUnavailable is reported by [AvailableCheck].
var ErrUnavailable = errors.New("unavailable")

// AvailableCheck is an optional check that fails while available returns
// false.
func AvailableCheck(name string, available func() bool) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			if !available() {
				return ErrUnavailable
			}
			return nil
		},
	}
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the JSON body of both probes.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz answers 503 when a critical check fails and 200 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Run(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Run evaluates every check concurrently and summarises the results.
func (h *Handler) Run(ctx context.Context) Report {
	var (
		mu  sync.Mutex
		rep = Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
		g   errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			timeout := c.Timeout
			if timeout <= 0 {
				timeout = DefaultTimeout
			}
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				rep.Checks[c.Name] = CheckResult{Status: StatusOK}
				return nil
			}
			slog.Warn("health: check failed", "check", c.Name, "optional", c.Optional, "err", err)
			res := CheckResult{Status: StatusFail, Error: err.Error()}
			switch {
			case !c.Optional:
				rep.Status = StatusFail
			case rep.Status == StatusOK:
				rep.Status = StatusDegraded
			}
			if c.Optional {
				res.Status = StatusDegraded
			}
			rep.Checks[c.Name] = res
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("health: encode response", "err", err)
	}
}
