package api

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/ranking"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

func (s *Server) listJourneys(w http.ResponseWriter, r *http.Request, userID string) {
	js, err := s.deps.Store.ListJourneys(r.Context(), userID, false)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get journeys", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journeys": js})
}

func (s *Server) savedJourneys(w http.ResponseWriter, r *http.Request, userID string) {
	js, err := s.deps.Store.ListJourneys(r.Context(), userID, true)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get saved journeys", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journeys": js})
}

type journeyRequest struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Time    string          `json:"time"`
	Journey transit.Journey `json:"journey"`
	Saved   bool            `json:"saved"`
}

func (s *Server) createJourney(w http.ResponseWriter, r *http.Request, userID string) {
	var req journeyRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(r.Context(), w, http.StatusBadRequest, "Invalid journey data", err)
		return
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		writeError(w, http.StatusBadRequest, "Invalid journey data")
		return
	}
	j, err := s.deps.Store.SaveJourney(r.Context(), transit.SavedJourney{
		UserID:  userID,
		From:    req.From,
		To:      req.To,
		Time:    req.Time,
		Journey: req.Journey,
		Saved:   req.Saved,
	})
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to save journey", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"journey": j})
}

// selectJourney records one use of a stored journey's route.
func (s *Server) selectJourney(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	js, err := s.deps.Store.ListJourneys(r.Context(), userID, false)
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to get journeys", err)
		return
	}
	i := slices.IndexFunc(js, func(j transit.SavedJourney) bool { return j.ID == id })
	if i < 0 {
		writeError(w, http.StatusNotFound, "Journey not found")
		return
	}
	rec, err := s.deps.Store.RecordUsage(r.Context(), userID, js[i].Journey.Key())
	if err != nil {
		s.fail(r.Context(), w, http.StatusInternalServerError, "Failed to record usage", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"familiarity": rec})
}

type planRequest struct {
	From        string               `json:"from"`
	To          string               `json:"to"`
	Time        string               `json:"time"`
	Preferences *transit.Preferences `json:"preferences,omitempty"`
}

// planTransit plans and ranks with the caller's stored preferences and
// familiarity unless the body overrides the preferences.
func (s *Server) planTransit(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	var req planRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(ctx, w, http.StatusBadRequest, "Invalid planning request", err)
		return
	}

	var prefs transit.Preferences
	if req.Preferences != nil {
		prefs = *req.Preferences
	} else if st, err := s.deps.Store.GetSettings(ctx, userID); err == nil {
		prefs = st.Preferences
	}

	journeys, err := s.deps.Planner.PlanJourney(ctx, planner.Request{
		From:        req.From,
		To:          req.To,
		Time:        req.Time,
		Preferences: prefs,
	})
	switch {
	case errors.Is(err, planner.ErrInvalidRequest):
		s.fail(ctx, w, http.StatusBadRequest, "Please enter a destination", err)
		return
	case errors.Is(err, planner.ErrNoRoutes):
		writeJSON(w, http.StatusOK, map[string]any{"routes": []ranking.Ranked{}})
		return
	case err != nil:
		s.fail(ctx, w, http.StatusBadGateway, "Failed to plan journey", err)
		return
	}

	var fam transit.Familiarity
	if recs, err := s.deps.Store.ListFamiliarity(ctx, userID); err == nil {
		fam = ranking.FromRecords(recs)
	} else {
		s.logger(ctx).Warn("api: familiarity unavailable, ranking without history", "user_id", userID, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": ranking.Rank(journeys, prefs, fam)})
}

func (s *Server) listStops(w http.ResponseWriter, _ *http.Request, _ string) {
	stops := []string{}
	if s.deps.Stops != nil {
		stops = s.deps.Stops()
	}
	writeJSON(w, http.StatusOK, map[string]any{"stops": stops})
}
