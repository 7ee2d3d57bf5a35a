// Package api serves the Wayfinder REST surface.
//
// Every /api route except the cue asset requires an X-User-ID header and is
// throttled per client. Responses are JSON objects keyed by resource name
// ({"tickets": [...]}, {"ticket": {...}}); failures carry a "message" field.
//
// The voice routes under /api/voice/{surface} drive a [session.Session]:
// start a listening cycle, deliver the recogniser's transcript and read the
// resulting state. Spoken feedback for those sessions is streamed over
// GET /api/feedback/stream.
package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/wayfinder/internal/feedback"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/session"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/internal/ticket"
)

// UserHeader carries the caller's user ID.
const UserHeader = "X-User-ID"

// cueSampleRate is the sample rate of the served start cue.
const cueSampleRate = 44100

// Deps holds the collaborators of a [Server]. Store, Tickets, Planner and
// Sessions are required.
type Deps struct {
	Store    store.Store
	Tickets  *ticket.Service
	Planner  planner.Planner
	Sessions *session.Manager

	// Hub streams session feedback. When nil the stream route is not
	// registered.
	Hub *feedback.Hub

	// FeedbackLog receives app feedback. When nil POST /api/feedback
	// answers 503.
	FeedbackLog *store.FeedbackLog

	// Cue is the start cue served as WAV. Default: [feedback.StartCue].
	Cue feedback.Tone

	// Stops lists known stop names for GET /api/transit/stops. Optional.
	Stops func() []string
}

// Server holds the HTTP handlers. It is safe for concurrent use.
type Server struct {
	deps    Deps
	limiter *Limiter

	cueOnce sync.Once
	cue     []byte
	cueErr  error
}

// Option configures a [Server].
type Option func(*Server)

// WithRateLimit throttles each client to rps requests per second with the
// given burst. A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = NewLimiter(rps, burst) }
}

// New creates a [Server].
func New(d Deps, opts ...Option) *Server {
	if d.Cue == (feedback.Tone{}) {
		d.Cue = feedback.StartCue
	}
	s := &Server{deps: d}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds every API route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	// Tickets and wallet.
	s.handle(mux, "GET /api/tickets", s.listTickets)
	s.handle(mux, "POST /api/tickets", s.purchaseTicket)
	s.handle(mux, "GET /api/tickets/active", s.activeTickets)
	s.handle(mux, "POST /api/tickets/{ticketID}/validate", s.validateTicket)
	s.handle(mux, "POST /api/tickets/notify-validator", s.notifyValidator)
	s.handle(mux, "GET /api/wallet", s.wallet)
	s.handle(mux, "POST /api/wallet/top-up", s.topUp)
	s.handle(mux, "GET /api/wallet/top-up-locations", s.topUpLocations)

	// Journeys and planning.
	s.handle(mux, "GET /api/journeys", s.listJourneys)
	s.handle(mux, "POST /api/journeys", s.createJourney)
	s.handle(mux, "GET /api/journeys/saved", s.savedJourneys)
	s.handle(mux, "POST /api/journeys/{id}/select", s.selectJourney)
	s.handle(mux, "POST /api/transit/plan", s.planTransit)
	s.handle(mux, "GET /api/transit/stops", s.listStops)

	// Alerts, settings and app feedback.
	s.handle(mux, "GET /api/alerts", s.listAlerts)
	s.handle(mux, "POST /api/alerts", s.createAlert)
	s.handle(mux, "PATCH /api/alerts/{id}/read", s.markAlertRead)
	s.handle(mux, "GET /api/settings", s.getSettings)
	s.handle(mux, "PATCH /api/settings", s.patchSettings)
	s.handle(mux, "POST /api/feedback", s.submitFeedback)

	// Voice sessions.
	s.handle(mux, "GET /api/voice/{surface}", s.voiceState)
	s.handle(mux, "DELETE /api/voice/{surface}", s.voiceClose)
	s.handle(mux, "POST /api/voice/{surface}/start", s.voiceStart)
	s.handle(mux, "POST /api/voice/{surface}/transcript", s.voiceTranscript)
	s.handle(mux, "PUT /api/voice/trip/form", s.tripForm)
	s.handle(mux, "POST /api/voice/trip/plan", s.tripPlan)
	s.handle(mux, "POST /api/voice/trip/routes/{id}/save", s.tripSave)
	s.handle(mux, "POST /api/voice/trip/routes/{id}/details", s.tripDetails)
	s.handle(mux, "POST /api/voice/trip/routes/{id}/select", s.tripSelect)
	s.handle(mux, "POST /api/voice/ticket/purchase", s.voicePurchase)
	s.handle(mux, "POST /api/voice/ticket/validate", s.voiceValidate)
	s.handle(mux, "POST /api/voice/ticket/top-up-locations", s.voiceTopUpLocations)

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /api/feedback/stream", s.feedbackStream)
	}
	mux.HandleFunc("GET /api/feedback/cue.wav", s.cueWAV)
}

// userHandler is an authenticated handler.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// handle registers h behind authentication and the rate limiter.
func (s *Server) handle(mux *http.ServeMux, pattern string, h userHandler) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if s.limiter != nil && !s.limiter.Allow(userID) {
			slog.Warn("api: rate limit exceeded", "user_id", userID, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
			return
		}
		h(w, r, userID)
	})
}

// feedbackStream upgrades to a WebSocket. Browsers cannot set headers on
// the upgrade request, so the user may also be given as ?user=.
func (s *Server) feedbackStream(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	s.deps.Hub.ServeWS(w, r, userID)
}

func (s *Server) cueWAV(w http.ResponseWriter, r *http.Request) {
	s.cueOnce.Do(func() { s.cue, s.cueErr = s.deps.Cue.WAV(cueSampleRate) })
	if s.cueErr != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to render cue", s.cueErr)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.cue)
}

// Close stops the limiter's background sweep.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

