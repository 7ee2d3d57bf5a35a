// Package session binds the voice pipeline to the application's UI
// surfaces.
//
// A [Session] owns one listening state machine for one rider on one
// surface (navigation shortcuts, trip planner or ticket ordering). When a
// recognised transcript arrives it parses it in the context captured at
// [Session.Start], dispatches the resulting intent to exactly one handler
// and reports the outcome through the rider's feedback channel. Failures
// of the planner or the ticket service end here: they become
// announcements and haptic patterns and are never propagated to the
// recognition loop.
//
// A [Manager] keeps at most one session per rider and surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/wayfinder/internal/feedback"
	"github.com/MrWong99/wayfinder/internal/intent"
	"github.com/MrWong99/wayfinder/internal/listen"
	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/ranking"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/internal/ticket"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

var (
	// ErrUnknownSurface is returned for a surface name that does not exist.
	ErrUnknownSurface = errors.New("session: unknown surface")

	// ErrFieldNotAllowed is returned by [Session.Start] for a field the
	// surface does not offer.
	ErrFieldNotAllowed = errors.New("session: field not available on this surface")

	// ErrWrongSurface is returned when an operation is called on a session
	// of another surface, e.g. saving a route on the ticket surface.
	ErrWrongSurface = errors.New("session: operation not available on this surface")

	// ErrRouteNotFound is returned for a route ID that is not among the
	// last planning results.
	ErrRouteNotFound = errors.New("session: route not found")
)

// Surface is a UI surface that hosts a voice session.
type Surface string

const (
	SurfaceNavigation Surface = "navigation"
	SurfaceTrip       Surface = "trip"
	SurfaceTicket     Surface = "ticket"
)

// ParseSurface validates a surface name.
func ParseSurface(name string) (Surface, error) {
	s := Surface(name)
	switch s {
	case SurfaceNavigation, SurfaceTrip, SurfaceTicket:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSurface, name)
}

// Domain returns the parse domain of s.
func (s Surface) Domain() intent.Domain {
	switch s {
	case SurfaceTrip:
		return intent.DomainTrip
	case SurfaceTicket:
		return intent.DomainTicket
	default:
		return intent.DomainGlobal
	}
}

// Accepts reports whether f can be the active field on s.
func (s Surface) Accepts(f intent.Field) bool {
	switch s {
	case SurfaceTrip:
		return f == intent.FieldNone || f == intent.FieldVoicePlan || f.IsCapture()
	case SurfaceTicket:
		return f == intent.FieldNone || f == intent.FieldTicketOrder
	default:
		return f == intent.FieldNone
	}
}

// TicketService sells and validates tickets. [ticket.Service] implements it.
type TicketService interface {
	Purchase(ctx context.Context, userID string, tt transit.TicketType, pm transit.PaymentMethod) (transit.Ticket, error)
	Validate(ctx context.Context, userID, ticketID string) (transit.Ticket, error)
	TopUpLocations() []string
}

// StopCorrector rewrites misrecognised stop names. phonetic.Corrector
// implements it.
type StopCorrector interface {
	Correct(spoken string) (string, bool)
}

// SettingsReader supplies the rider's stored planning preferences.
type SettingsReader interface {
	GetSettings(ctx context.Context, userID string) (transit.Settings, error)
}

// Services are the collaborators shared by every session.
type Services struct {
	Planner     planner.Planner
	Tickets     TicketService
	Settings    SettingsReader
	Familiarity store.Familiarity
	Journeys    store.Journeys

	// Corrector is optional; when nil spoken endpoints are used as heard.
	Corrector StopCorrector

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Config holds the tunables of a session.
type Config struct {
	// ListenTimeout bounds the wait for a transcript. Default: 8s.
	ListenTimeout time.Duration

	// ProcessingTimeout bounds the planner or ticket call made for a
	// recognised command. Default: 5s.
	ProcessingTimeout time.Duration

	// SessionTimeout bounds a whole cycle from start to the return to
	// Idle. Default: 15s.
	SessionTimeout time.Duration

	// CurrentLocation replaces a missing "from" clause and is never
	// corrected. Default: [intent.DefaultCurrentLocation].
	CurrentLocation string

	// StartCue and ReadyPulse default to the feedback package's values.
	StartCue   feedback.Tone
	ReadyPulse feedback.Pattern
}

// WithDefaults returns c with every unset field filled in.
func (c Config) WithDefaults() Config {
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = 8 * time.Second
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = 5 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 15 * time.Second
	}
	if c.CurrentLocation == "" {
		c.CurrentLocation = intent.DefaultCurrentLocation
	}
	if c.StartCue == (feedback.Tone{}) {
		c.StartCue = feedback.StartCue
	}
	if len(c.ReadyPulse) == 0 {
		c.ReadyPulse = feedback.PulseReady
	}
	return c
}

// TripForm is the trip planner's form state.
type TripForm struct {
	From string `json:"from"`
	To   string `json:"to"`
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`

	// Preferences overrides the rider's stored preferences when set.
	Preferences *transit.Preferences `json:"preferences,omitempty"`
}

// Navigation is the section the rider asked to go to.
type Navigation struct {
	Section intent.Section `json:"section"`
	Label   string         `json:"label"`
	Path    string         `json:"path"`
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Surface     Surface          `json:"surface"`
	State       string           `json:"state"`
	ActiveField intent.Field     `json:"activeField,omitempty"`
	LastIntent  intent.Kind      `json:"lastIntent,omitempty"`
	Navigation  *Navigation      `json:"navigation,omitempty"`
	Form        *TripForm        `json:"form,omitempty"`
	Routes      []ranking.Ranked `json:"routes,omitempty"`
	LastTicket  *transit.Ticket  `json:"lastTicket,omitempty"`
}

// Session is the voice session of one rider on one surface. All methods
// are safe for concurrent use.
type Session struct {
	id      string
	userID  string
	surface Surface
	svc     Services
	fam     *FamiliarityGuard
	fb      feedback.Channel
	metrics *observe.Metrics
	push    *listen.Push
	machine *listen.Machine
	now     func() time.Time

	mu         sync.Mutex
	cfg        Config
	parseCtx   intent.Context
	startedAt  time.Time
	form       TripForm
	routes     []ranking.Ranked
	nav        *Navigation
	lastIntent intent.Kind
	lastTicket *transit.Ticket
}

func newSession(id, userID string, surface Surface, svc Services, cfg Config, fb feedback.Channel) *Session {
	cfg = cfg.WithDefaults()
	if svc.Metrics == nil {
		svc.Metrics = observe.DefaultMetrics()
	}
	if fb == nil {
		fb = feedback.Discard{}
	}
	s := &Session{
		id:      id,
		userID:  userID,
		surface: surface,
		svc:     svc,
		fb:      fb,
		metrics: svc.Metrics,
		push:    listen.NewPush(),
		now:     time.Now,
		cfg:     cfg,
		form:    TripForm{From: cfg.CurrentLocation},
	}
	if svc.Familiarity != nil {
		s.fam = NewFamiliarityGuard(svc.Familiarity)
	}
	s.machine = listen.New(listen.Config{
		Recognizer:   listen.RecognizerFunc(s.recognize),
		Feedback:     fb,
		StartCue:     cfg.StartCue,
		ReadyPulse:   cfg.ReadyPulse,
		OnTransition: s.onTransition,
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Surface returns the session's surface.
func (s *Session) Surface() Surface { return s.surface }

func (s *Session) setConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.WithDefaults()
}

func (s *Session) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) recognize(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config().ListenTimeout)
	defer cancel()
	return s.push.Recognize(ctx)
}

func (s *Session) onTransition(from, to listen.State) {
	switch {
	case from == listen.Idle:
		s.metrics.AddActiveSession(context.Background(), string(s.surface), 1)
	case to == listen.Idle:
		s.metrics.AddActiveSession(context.Background(), string(s.surface), -1)
	}
}

// Start begins listening with field as the active target. It fails with
// [listen.ErrBusy] while a cycle is in flight and with
// [ErrFieldNotAllowed] for a field the surface does not offer.
//
// Only ctx's values are used: the cycle outlives the calling request and
// is bounded by the configured session timeout instead.
func (s *Session) Start(ctx context.Context, field intent.Field) error {
	if !s.surface.Accepts(field) {
		return fmt.Errorf("%w: %q on %s", ErrFieldNotAllowed, field, s.surface)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.machine.State(); st != listen.Idle {
		return listen.ErrBusy
	}

	cfg := s.cfg
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.SessionTimeout)

	s.parseCtx = intent.Context{
		Domain:          s.surface.Domain(),
		ActiveField:     field,
		CurrentLocation: cfg.CurrentLocation,
	}
	s.startedAt = s.now()

	switch {
	case s.surface == SurfaceTrip && field != intent.FieldNone:
		s.fb.Announce(cycleCtx, fieldPrompt(field))
	case s.surface == SurfaceTicket:
		s.fb.Announce(cycleCtx, msgTicketPrompt)
	}

	handler := func(ctx context.Context, res listen.Result) {
		defer cancel()
		s.handle(ctx, res)
	}
	s.push.Arm()
	if err := s.machine.Start(cycleCtx, handler, listen.WithField(string(field))); err != nil {
		s.push.Disarm()
		cancel()
		return err
	}
	slog.Debug("session: listening", "session_id", s.id, "user_id", s.userID, "surface", s.surface, "field", field)
	return nil
}

// Deliver hands a recognised transcript to the listening cycle. It returns
// [listen.ErrNotListening] when the session is not listening or already
// has a transcript for this cycle.
func (s *Session) Deliver(transcript string) error {
	return s.push.Deliver(transcript)
}

// Cancel aborts the in-flight cycle without an announcement.
func (s *Session) Cancel() {
	s.machine.Cancel()
}

// Wait blocks until the in-flight cycle, if any, has finished.
func (s *Session) Wait() {
	s.machine.Wait()
}

// Close cancels any cycle and releases the session.
func (s *Session) Close() {
	s.machine.Close()
}

// handle is the processing step of a cycle.
func (s *Session) handle(ctx context.Context, res listen.Result) {
	s.mu.Lock()
	pc := s.parseCtx
	cfg := s.cfg
	started := s.startedAt
	s.parseCtx.ActiveField = intent.FieldNone
	s.mu.Unlock()

	surface := string(s.surface)
	if res.Err != nil {
		outcome := recognitionOutcome(res.Err)
		s.metrics.RecordRecognition(ctx, surface, outcome)
		s.metrics.RecordVoiceSession(ctx, surface, outcome, s.now().Sub(started))
		if outcome != "cancelled" {
			s.fb.Announce(context.WithoutCancel(ctx), msgNotRecognized)
		}
		slog.Info("session: recognition failed", "session_id", s.id, "surface", surface, "outcome", outcome)
		return
	}

	outcome := "recognized"
	if strings.TrimSpace(res.Transcript) == "" {
		outcome = "empty"
	}
	s.metrics.RecordRecognition(ctx, surface, outcome)

	in := intent.Parse(intent.NewTranscript(res.Transcript), pc)
	s.metrics.RecordIntent(ctx, surface, string(in.Kind()))

	s.mu.Lock()
	s.lastIntent = in.Kind()
	s.mu.Unlock()

	pctx, span := observe.StartVoiceSpan(ctx, s.id, surface)
	span.SetAttributes(observe.Attr("voice.intent", string(in.Kind())))
	pctx, cancel := context.WithTimeout(pctx, cfg.ProcessingTimeout)
	defer cancel()
	err := s.process(pctx, in)
	observe.EndSpan(span, err)

	outcome = string(in.Kind())
	if err != nil {
		outcome = "timeout"
		slog.Warn("session: command abandoned", "session_id", s.id, "surface", surface, "intent", in.Kind(), "err", err)
	} else {
		slog.Info("session: command handled", "session_id", s.id, "surface", surface, "intent", in.Kind())
	}
	s.metrics.RecordVoiceSession(ctx, surface, outcome, s.now().Sub(started))
}

// process runs the handler for in and waits for it until ctx is done. A
// handler still running then is abandoned: its feedback is gated off, the
// rider hears the failure message of the command instead and the cycle
// returns to Idle.
func (s *Session) process(ctx context.Context, in intent.Intent) error {
	gate := feedback.NewGate(s.fb)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatch(ctx, gate, in)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	select {
	case <-done:
		return nil
	default:
	}
	gate.Close()

	fctx := context.WithoutCancel(ctx)
	switch in.(type) {
	case intent.PlanJourney:
		s.fb.Announce(fctx, msgPlanningFailed)
		s.fb.Vibrate(fctx, feedback.PulseError)
	case intent.PurchaseTicket:
		s.fb.Announce(fctx, msgPurchaseFailed)
		s.fb.Vibrate(fctx, feedback.PulseError)
	default:
		s.fb.Announce(fctx, msgNotRecognized)
	}
	return ctx.Err()
}

func recognitionOutcome(err error) string {
	switch {
	case errors.Is(err, listen.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// dispatch routes in to its handler, which reports through fb. Exactly one
// handler runs per intent. The planning and purchase outcomes have been
// announced by the time their handlers return, so only REST callers use
// their results.
func (s *Session) dispatch(ctx context.Context, fb feedback.Channel, in intent.Intent) {
	switch in := in.(type) {
	case intent.Navigate:
		s.navigate(ctx, fb, in.Destination)
	case intent.SetField:
		s.setField(ctx, fb, in.Field, in.Value)
	case intent.PlanJourney:
		s.plan(ctx, fb, in.From, in.To, in.Time) //nolint:errcheck // announced
	case intent.PurchaseTicket:
		s.purchase(ctx, fb, in.TicketType, in.PaymentMethod) //nolint:errcheck // announced
	default:
		s.notRecognized(ctx, fb)
	}
}

func (s *Session) notRecognized(ctx context.Context, fb feedback.Channel) {
	if s.surface == SurfaceNavigation {
		fb.Announce(ctx, msgNavigationNotRecognized)
		return
	}
	fb.Announce(ctx, msgNotRecognized)
}

func (s *Session) navigate(ctx context.Context, fb feedback.Channel, sec intent.Section) {
	nav := &Navigation{Section: sec, Label: sec.Label(), Path: sec.Path()}
	s.mu.Lock()
	s.nav = nav
	s.mu.Unlock()
	fb.Announce(ctx, navigatedTo(sec))
}

func (s *Session) setField(ctx context.Context, fb feedback.Channel, f intent.Field, value string) {
	s.mu.Lock()
	switch f {
	case intent.FieldFrom:
		s.form.From = value
	case intent.FieldTo:
		s.form.To = value
	case intent.FieldDate:
		s.form.Date = value
	case intent.FieldTime:
		s.form.Time = value
	}
	s.mu.Unlock()
	fb.Announce(ctx, fieldSet(f, value))
}

// Snapshot returns the session's current state.
func (s *Session) Snapshot() Snapshot {
	state := s.machine.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:         s.id,
		UserID:     s.userID,
		Surface:    s.surface,
		State:      state.String(),
		LastIntent: s.lastIntent,
	}
	if state != listen.Idle {
		snap.ActiveField = s.parseCtx.ActiveField
	}
	if s.nav != nil {
		nav := *s.nav
		snap.Navigation = &nav
	}
	if s.surface == SurfaceTrip {
		form := s.form
		snap.Form = &form
		snap.Routes = cloneRanked(s.routes)
	}
	if s.lastTicket != nil {
		t := *s.lastTicket
		snap.LastTicket = &t
	}
	return snap
}

func cloneRanked(in []ranking.Ranked) []ranking.Ranked {
	if in == nil {
		return nil
	}
	out := make([]ranking.Ranked, len(in))
	for i, r := range in {
		out[i] = r
		out[i].Journey = r.Journey.Clone()
	}
	return out
}

func (s *Session) require(surface Surface) error {
	if s.surface != surface {
		return fmt.Errorf("%w: %s", ErrWrongSurface, s.surface)
	}
	return nil
}

// Compile-time check that the ticket service fits.
var _ TicketService = (*ticket.Service)(nil)
