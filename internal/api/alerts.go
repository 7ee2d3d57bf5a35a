package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request, userID string) {
	as, err := s.deps.Store.ListAlerts(r.Context(), userID)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": as})
}

type alertRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Route   string `json:"route"`
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request, userID string) {
	var req alertRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid alert data", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Invalid alert data")
		return
	}
	a, err := s.deps.Store.CreateAlert(r.Context(), transit.Alert{
		UserID:  userID,
		Title:   req.Title,
		Message: req.Message,
		Route:   req.Route,
	})
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to create alert", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"alert": a})
}

func (s *Server) markAlertRead(w http.ResponseWriter, r *http.Request, userID string) {
	err := s.deps.Store.MarkAlertRead(r.Context(), userID, r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Alert not found")
	case err != nil:
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to mark alert as read", err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := s.deps.Store.GetSettings(r.Context(), userID)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": st})
}

func (s *Server) patchSettings(w http.ResponseWriter, r *http.Request, userID string) {
	var patch transit.SettingsPatch
	if err := decode(r, &patch, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid settings data", err)
		return
	}
	cur, err := s.deps.Store.GetSettings(r.Context(), userID)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get settings", err)
		return
	}
	next := patch.Apply(cur)
	next.UserID = userID
	st, err := s.deps.Store.PutSettings(r.Context(), next)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": st})
}

type feedbackRequest struct {
	Rating   int    `json:"rating"`
	Category string `json:"category"`
	Comments string `json:"comments"`
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request, userID string) {
	if s.deps.FeedbackLog == nil {
		writeError(w, http.StatusServiceUnavailable, "Feedback is not enabled")
		return
	}
	var req feedbackRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid feedback data", err)
		return
	}
	fb := store.AppFeedback{UserID: userID, Rating: req.Rating, Category: req.Category, Comments: req.Comments}
	if err := fb.Validate(); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid feedback data", err)
		return
	}
	rec, err := s.deps.FeedbackLog.Append(fb)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to store feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"feedback": rec})
}
