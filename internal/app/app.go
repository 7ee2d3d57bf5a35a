// Package app wires all Wayfinder subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, and Shutdown
// tears everything down in order. ApplyConfig applies a reloaded config to
// the running subsystems.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/wayfinder/internal/api"
	"github.com/MrWong99/wayfinder/internal/config"
	"github.com/MrWong99/wayfinder/internal/feedback"
	"github.com/MrWong99/wayfinder/internal/health"
	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/internal/phonetic"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/resilience"
	"github.com/MrWong99/wayfinder/internal/session"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/internal/ticket"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Backend is one configured planner, named for metrics and breaker logs.
type Backend struct {
	Name    string
	Planner planner.Planner
}

// Planners holds the planning backends in failover order. Populated by
// main.go via the config registry.
type Planners struct {
	Backends []Backend

	// Stops lists the known stop names used for phonetic correction and
	// GET /api/transit/stops. Optional.
	Stops func() []string
}

// App owns all subsystem lifetimes.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	metrics   *observe.Metrics
	level     *slog.LevelVar
	store     store.Store
	tickets   *ticket.Service
	planner   *resilience.PlannerFallback
	stops     func() []string
	corrector *switchCorrector
	hub       *feedback.Hub
	sessions  *session.Manager
	api       *api.Server
	handler   http.Handler
	server    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands New the level variable behind the process logger so
// that reloaded configs can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, planners *Planners, opts ...Option) (*App, error) {
	if planners == nil || len(planners.Backends) == 0 {
		return nil, errors.New("app: at least one planner backend is required")
	}
	a := &App{cfg: cfg, stops: planners.Stops}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.stops == nil {
		a.stops = func() []string { return nil }
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Tickets ───────────────────────────────────────────────────────
	loc := time.Local
	if tz := cfg.Tickets.Timezone; tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("app: tickets timezone: %w", err)
		}
	}
	a.tickets = ticket.New(a.store, a.store, faresFromConfig(cfg.Tickets),
		ticket.WithMetrics(a.metrics), ticket.WithLocation(loc))

	// ── 3. Planner chain ─────────────────────────────────────────────────
	a.initPlanner(planners.Backends)
	a.corrector = &switchCorrector{}
	a.corrector.configure(cfg, a.stops())

	// ── 4. Feedback and sessions ─────────────────────────────────────────
	a.hub = feedback.NewHub(
		feedback.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		feedback.WithHubMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.hub.Close)

	a.sessions = session.NewManager(session.ManagerConfig{
		Services: session.Services{
			Planner:     a.planner,
			Tickets:     a.tickets,
			Settings:    a.store,
			Familiarity: a.store,
			Journeys:    a.store,
			Corrector:   a.corrector,
			Metrics:     a.metrics,
		},
		Config:   sessionConfig(cfg),
		Feedback: a.feedbackChannel,
	})

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	deps := api.Deps{
		Store:    a.store,
		Tickets:  a.tickets,
		Planner:  a.planner,
		Sessions: a.sessions,
		Hub:      a.hub,
		Cue:      toneFromConfig(cfg.Voice.StartCue),
		Stops:    a.stops,
	}
	if cfg.Storage.FeedbackFile != "" {
		deps.FeedbackLog = store.NewFeedbackLog(cfg.Storage.FeedbackFile)
	}
	a.api = api.New(deps, api.WithRateLimit(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst))

	mux := http.NewServeMux()
	a.api.Register(mux)
	health.New(
		health.PingCheck("store", a.store),
		health.AvailableCheck("planner", a.planner.Available),
	).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	mux.HandleFunc("GET /api/status", a.status)
	a.handler = observe.Middleware(a.metrics)(mux)

	slog.Info("app: initialised",
		"planners", len(planners.Backends),
		"stops", len(a.stops()),
		"feedback_log", deps.FeedbackLog != nil,
	)
	return a, nil
}

// initStore opens PostgreSQL when a DSN is configured and falls back to the
// in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	cfg := a.cfg
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		var pg *store.PostgresStore
		err := resilience.Retry(ctx, resilience.RetryConfig{
			Name:        "postgres",
			MaxAttempts: cfg.Storage.ConnectAttempts,
		}, func(ctx context.Context) error {
			var err error
			pg, err = store.Open(ctx, dsn, cfg.Tickets.StartingBalanceCents)
			return err
		})
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
		slog.Info("app: using postgres store")
		return nil
	}

	seed := make([]transit.FamiliarityRecord, 0, len(cfg.Familiarity.Seed))
	for _, s := range cfg.Familiarity.Seed {
		seed = append(seed, transit.FamiliarityRecord{
			Key:       transit.JourneyKey{ID: s.ID, Summary: s.Summary},
			TimesUsed: s.TimesUsed,
		})
	}
	mem := store.NewMemStore(
		store.WithStartingBalance(cfg.Tickets.StartingBalanceCents),
		store.WithFamiliaritySeed(seed),
	)
	a.store = mem
	a.closers = append(a.closers, mem.Close)
	slog.Warn("app: no postgres_dsn configured, data is kept in memory only")
	return nil
}

// initPlanner meters every backend and chains them behind circuit breakers.
func (a *App) initPlanner(backends []Backend) {
	cb := a.cfg.Planner.CircuitBreaker
	cbCfg := resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}
	first := backends[0]
	a.planner = resilience.NewPlannerFallback(planner.Metered(first.Planner, a.metrics, first.Name), first.Name, cbCfg, a.metrics)
	for _, b := range backends[1:] {
		a.planner.AddFallback(b.Name, planner.Metered(b.Planner, a.metrics, b.Name))
	}
}

// feedbackChannel builds the sink for one voice session: the rider's
// WebSocket clients plus the debug log, metered and panic-safe.
func (a *App) feedbackChannel(userID string, surface session.Surface) feedback.Channel {
	name := string(surface)
	return feedback.Safe(feedback.Metered(feedback.Multi{
		a.hub.Channel(userID, name),
		feedback.NewLog(slog.Default().With("user_id", userID), name),
	}, a.metrics, name))
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Sessions []session.Info             `json:"sessions"`
	Planners []resilience.BreakerStatus `json:"planners"`
}

func (a *App) status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(statusResponse{Sessions: a.sessions.List(), Planners: a.planner.Status()})
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.mu.Lock()
	a.server = srv
	tls := a.cfg.Server.TLS
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("app: serving", "addr", ln.Addr().String(), "tls", tls != nil)
		if tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ApplyConfig applies the live-reloadable parts of next and logs the
// sections that need a restart.
func (a *App) ApplyConfig(next *config.Config) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = next
	a.mu.Unlock()

	d := config.Diff(old, next)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.sessions.SetConfig(sessionConfig(next))
		slog.Info("app: voice settings updated")
	}
	if d.FaresChanged || d.TopUpLocationsChanged {
		a.tickets.SetFares(faresFromConfig(next.Tickets))
		slog.Info("app: fares updated")
	}
	if d.StopCorrectionChanged || d.VoiceChanged {
		a.corrector.configure(next, a.stops())
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Shutdown stops the HTTP server, ends every voice session and tears down
// the remaining subsystems. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("app: http shutdown", "err", err)
			}
		}
		if err := a.sessions.Shutdown(ctx); err != nil && !errors.Is(err, session.ErrManagerClosed) {
			slog.Warn("app: session shutdown", "err", err)
		}
		a.api.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// switchCorrector lets stop correction be reconfigured or disabled at
// runtime.
type switchCorrector struct {
	c atomic.Pointer[phonetic.Corrector]
}

func (s *switchCorrector) configure(cfg *config.Config, stops []string) {
	sc := cfg.Planner.StopCorrection
	if !sc.Enabled || len(stops) == 0 {
		s.c.Store(nil)
		return
	}
	s.c.Store(phonetic.NewCorrector(stops, []string{cfg.Voice.CurrentLocationLabel},
		phonetic.WithPhoneticThreshold(sc.PhoneticThreshold),
		phonetic.WithFuzzyThreshold(sc.FuzzyThreshold),
	))
}

// Correct implements session.StopCorrector.
func (s *switchCorrector) Correct(spoken string) (string, bool) {
	c := s.c.Load()
	if c == nil {
		return spoken, false
	}
	return c.Correct(spoken)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func faresFromConfig(t config.TicketsConfig) ticket.Fares {
	return ticket.Fares{
		SinglePriceCents: t.Single.PriceCents,
		SingleValidity:   t.Single.Validity,
		DayPriceCents:    t.Day.PriceCents,
		Currency:         t.Currency,
		TopUpLocations:   t.TopUpLocations,
	}
}

func toneFromConfig(t config.ToneConfig) feedback.Tone {
	return feedback.Tone{FrequencyHz: t.FrequencyHz, Duration: t.Duration}
}

func sessionConfig(cfg *config.Config) session.Config {
	v := cfg.Voice
	pulse := make(feedback.Pattern, len(v.ReadyPulse))
	for i, ms := range v.ReadyPulse {
		pulse[i] = time.Duration(ms) * time.Millisecond
	}
	return session.Config{
		ListenTimeout:     v.ListenTimeout,
		ProcessingTimeout: v.ProcessingTimeout,
		SessionTimeout:    v.SessionTimeout,
		CurrentLocation:   v.CurrentLocationLabel,
		StartCue:          toneFromConfig(v.StartCue),
		ReadyPulse:        pulse,
	}
}
