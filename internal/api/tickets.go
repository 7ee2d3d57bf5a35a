package api

import (
	"errors"
	"net/http"

	"github.com/MrWong99/wayfinder/internal/session"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/internal/ticket"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

type purchaseRequest struct {
	Type          transit.TicketType    `json:"type"`
	PaymentMethod transit.PaymentMethod `json:"paymentMethod"`
}

// ticketStatus maps ticket service errors to HTTP statuses.
func ticketStatus(err error) int {
	switch {
	case errors.Is(err, ticket.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ticket.ErrInvalidOrder), errors.Is(err, ticket.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ticket.ErrExpired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request, userID string) {
	ts, err := s.deps.Tickets.List(r.Context(), userID)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": ts})
}

func (s *Server) activeTickets(w http.ResponseWriter, r *http.Request, userID string) {
	ts, err := s.deps.Tickets.Active(r.Context(), userID)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get active tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": ts})
}

func (s *Server) purchaseTicket(w http.ResponseWriter, r *http.Request, userID string) {
	var req purchaseRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid ticket data", err)
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = transit.PayCard
	}
	t, err := s.deps.Tickets.Purchase(r.Context(), userID, req.Type, req.PaymentMethod)
	if err != nil {
		s.fail(r.Context(), w, ticketStatus(err), "Ticket purchase failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ticket": t})
}

func (s *Server) validateTicket(w http.ResponseWriter, r *http.Request, userID string) {
	t, err := s.deps.Tickets.Validate(r.Context(), userID, r.PathValue("ticketID"))
	if err != nil {
		status := ticketStatus(err)
		msg := "Failed to validate ticket"
		if status == http.StatusNotFound {
			msg = "Ticket not found"
		}
		s.fail(r.Context(), w, status, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": t})
}

// notifyValidator alerts staff through the rider's ticket session so the
// confirmation is spoken.
func (s *Server) notifyValidator(w http.ResponseWriter, r *http.Request, userID string) {
	sess, err := s.deps.Sessions.Get(userID, session.SurfaceTicket)
	if err != nil {
		s.fail(r.Context(), w, http.StatusServiceUnavailable, "Voice sessions unavailable", err)
		return
	}
	if err := sess.NotifyValidator(r.Context()); err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to notify validator", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Validator notified of digital ticket"})
}

func (s *Server) wallet(w http.ResponseWriter, r *http.Request, userID string) {
	bal, err := s.deps.Tickets.Balance(r.Context(), userID)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": bal, "currency": s.deps.Tickets.Currency()})
}

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) topUp(w http.ResponseWriter, r *http.Request, userID string) {
	var req topUpRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid top-up data", err)
		return
	}
	bal, err := s.deps.Tickets.TopUp(r.Context(), userID, req.Amount)
	if err != nil {
		s.fail(r.Context(), w, ticketStatus(err), "Top-up failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": bal, "currency": s.deps.Tickets.Currency()})
}

func (s *Server) topUpLocations(w http.ResponseWriter, _ *http.Request, _ string) {
	writeJSON(w, http.StatusOK, map[string]any{"locations": s.deps.Tickets.TopUpLocations()})
}
