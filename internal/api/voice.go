package api

import (
	"errors"
	"net/http"

	"github.com/MrWong99/wayfinder/internal/intent"
	"github.com/MrWong99/wayfinder/internal/listen"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/ranking"
	"github.com/MrWong99/wayfinder/internal/session"
)

// voiceSession resolves the session named by surface, writing the error
// response when it cannot.
func (s *Server) voiceSession(w http.ResponseWriter, r *http.Request, userID string, surface session.Surface) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(userID, surface)
	switch {
	case errors.Is(err, session.ErrUnknownSurface):
		writeError(w, http.StatusNotFound, "Unknown voice surface")
		return nil, false
	case err != nil:
		s.fail(r.Context(), w, http.StatusServiceUnavailable, "Voice sessions unavailable", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) pathSession(w http.ResponseWriter, r *http.Request, userID string) (*session.Session, bool) {
	return s.voiceSession(w, r, userID, session.Surface(r.PathValue("surface")))
}

// voiceStatus maps session errors to HTTP statuses.
func voiceStatus(err error) int {
	switch {
	case errors.Is(err, listen.ErrBusy), errors.Is(err, listen.ErrNotListening), errors.Is(err, listen.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, session.ErrFieldNotAllowed), errors.Is(err, session.ErrWrongSurface):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrRouteNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) voiceState(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.pathSession(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
}

func (s *Server) voiceClose(w http.ResponseWriter, r *http.Request, userID string) {
	surface, err := session.ParseSurface(r.PathValue("surface"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown voice surface")
		return
	}
	s.deps.Sessions.Close(userID, surface)
	w.WriteHeader(http.StatusNoContent)
}

type startRequest struct {
	Field intent.Field `json:"field"`
}

func (s *Server) voiceStart(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.pathSession(w, r, userID)
	if !ok {
		return
	}
	var req startRequest
	if err := decode(r, &req, true); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid start request", err)
		return
	}
	if err := sess.Start(r.Context(), req.Field); err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Voice session not started", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session": sess.Snapshot()})
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

// voiceTranscript hands the recogniser's text to the listening session and
// answers once the command has been processed.
func (s *Server) voiceTranscript(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.pathSession(w, r, userID)
	if !ok {
		return
	}
	var req transcriptRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid transcript", err)
		return
	}
	if err := sess.Deliver(req.Transcript); err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Session is not listening", err)
		return
	}
	sess.Wait()
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
}

func (s *Server) tripForm(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTrip)
	if !ok {
		return
	}
	var form session.TripForm
	if err := decode(r, &form, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid trip form", err)
		return
	}
	if err := sess.Fill(form); err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Invalid trip form", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Snapshot()})
}

// tripPlan submits the trip form, optionally replacing it with the body
// first. The outcome is also announced to the rider.
func (s *Server) tripPlan(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTrip)
	if !ok {
		return
	}
	var form *session.TripForm
	if err := decode(r, &form, true); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid trip form", err)
		return
	}
	if form != nil {
		if err := sess.Fill(*form); err != nil {
			s.fail(r.Context(), w, voiceStatus(err), "Invalid trip form", err)
			return
		}
	}
	routes, err := sess.Plan(r.Context())
	switch {
	case errors.Is(err, planner.ErrInvalidRequest):
		s.fail(r.Context(), w, http.StatusBadRequest, "Please enter a destination", err)
	case errors.Is(err, planner.ErrNoRoutes):
		writeJSON(w, http.StatusOK, map[string]any{"routes": []ranking.Ranked{}})
	case err != nil:
		s.fail(r.Context(), w, http.StatusBadGateway, "Journey planning failed. Please try again.", err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
	}
}

func (s *Server) tripSave(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTrip)
	if !ok {
		return
	}
	j, err := sess.SaveRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Route could not be saved", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"journey": j})
}

func (s *Server) tripDetails(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTrip)
	if !ok {
		return
	}
	details, err := sess.RouteDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Route not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": details})
}

func (s *Server) tripSelect(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTrip)
	if !ok {
		return
	}
	rec, err := sess.SelectRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Route not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"familiarity": rec})
}

func (s *Server) voicePurchase(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTicket)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid ticket data", err)
		return
	}
	t, err := sess.Purchase(r.Context(), req.Type, req.PaymentMethod)
	if err != nil {
		s.fail(r.Context(), w, ticketStatus(err), "Ticket purchase failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ticket": t})
}

type validateRequest struct {
	TicketID string `json:"ticketId"`
}

func (s *Server) voiceValidate(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTicket)
	if !ok {
		return
	}
	var req validateRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid validation request", err)
		return
	}
	t, err := sess.Validate(r.Context(), req.TicketID)
	if err != nil {
		s.fail(r.Context(), w, ticketStatus(err), "Ticket validation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": t})
}

func (s *Server) voiceTopUpLocations(w http.ResponseWriter, r *http.Request, userID string) {
	sess, ok := s.voiceSession(w, r, userID, session.SurfaceTicket)
	if !ok {
		return
	}
	locs, err := sess.AnnounceTopUpLocations(r.Context())
	if err != nil {
		s.fail(r.Context(), w, voiceStatus(err), "Failed to announce top-up locations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs})
}
