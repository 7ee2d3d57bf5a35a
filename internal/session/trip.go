package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/wayfinder/internal/feedback"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/ranking"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

const msgSaveFailed = "Route could not be saved. Please try again."

// Fill replaces the trip form without any announcement, e.g. after the
// rider typed into it. An empty From becomes the current-location label.
func (s *Session) Fill(form TripForm) error {
	if err := s.require(SurfaceTrip); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(form.From) == "" {
		form.From = s.cfg.CurrentLocation
	}
	if form.Preferences != nil {
		p := *form.Preferences
		form.Preferences = &p
	}
	s.form = form
	return nil
}

// Plan submits the current trip form. It announces the outcome and
// returns the ranked journeys.
func (s *Session) Plan(ctx context.Context) ([]ranking.Ranked, error) {
	if err := s.require(SurfaceTrip); err != nil {
		return nil, err
	}
	s.mu.Lock()
	form := s.form
	s.mu.Unlock()
	return s.plan(ctx, s.fb, form.From, form.To, form.Time)
}

// plan runs one planning request and reports through fb. An empty
// destination is announced and never sent to the planner.
func (s *Session) plan(ctx context.Context, fb feedback.Channel, from, to, at string) ([]ranking.Ranked, error) {
	if strings.TrimSpace(to) == "" {
		fb.Announce(ctx, msgEnterDestination)
		return nil, planner.ErrInvalidRequest
	}
	if strings.TrimSpace(from) == "" {
		from = s.config().CurrentLocation
	}
	from, to = s.correct(from), s.correct(to)

	s.mu.Lock()
	s.form.From, s.form.To, s.form.Time = from, to, at
	s.mu.Unlock()

	fb.Announce(ctx, planningJourney(from, to, at))

	prefs := s.preferences(ctx)
	journeys, err := s.svc.Planner.PlanJourney(ctx, planner.Request{From: from, To: to, Time: at, Preferences: prefs})
	if err == nil && len(journeys) == 0 {
		err = planner.ErrNoRoutes
	}
	if err == nil && ctx.Err() != nil {
		// Answered after the caller gave up.
		err = ctx.Err()
	}
	if err != nil {
		slog.Warn("session: planning failed", "session_id", s.id, "user_id", s.userID,
			"from", from, "to", to, "outcome", planner.Outcome(err), "err", err)
		s.mu.Lock()
		s.routes = nil
		s.mu.Unlock()
		fb.Announce(ctx, msgPlanningFailed)
		fb.Vibrate(ctx, feedback.PulseError)
		return nil, err
	}

	var fam transit.Familiarity
	if s.fam != nil {
		recs, _ := s.fam.ListFamiliarity(ctx, s.userID)
		fam = ranking.FromRecords(recs)
	}
	ranked := ranking.Rank(journeys, prefs, fam)

	s.mu.Lock()
	s.routes = ranked
	s.mu.Unlock()

	fb.Announce(ctx, foundRoutes(len(ranked)))
	fb.Vibrate(ctx, feedback.PulseSuccess)
	return cloneRanked(ranked), nil
}

// correct maps a spoken endpoint to a known stop. The current-location
// label is always kept as is.
func (s *Session) correct(endpoint string) string {
	if s.svc.Corrector == nil || strings.EqualFold(endpoint, s.config().CurrentLocation) {
		return endpoint
	}
	if fixed, ok := s.svc.Corrector.Correct(endpoint); ok {
		slog.Debug("session: corrected stop name", "session_id", s.id, "heard", endpoint, "stop", fixed)
		return fixed
	}
	return endpoint
}

// preferences returns the form override or the rider's stored preferences.
func (s *Session) preferences(ctx context.Context) transit.Preferences {
	s.mu.Lock()
	override := s.form.Preferences
	s.mu.Unlock()
	if override != nil {
		return *override
	}
	if s.svc.Settings == nil {
		return transit.Preferences{}
	}
	st, err := s.svc.Settings.GetSettings(ctx, s.userID)
	if err != nil {
		slog.Warn("session: load settings failed, planning without preferences", "user_id", s.userID, "err", err)
		return transit.Preferences{}
	}
	return st.Preferences
}

func (s *Session) route(routeID string) (ranking.Ranked, TripForm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if r.ID == routeID {
			r.Journey = r.Journey.Clone()
			return r, s.form, nil
		}
	}
	return ranking.Ranked{}, TripForm{}, fmt.Errorf("%w: %q", ErrRouteNotFound, routeID)
}

// SaveRoute stores one of the last planned routes for later.
func (s *Session) SaveRoute(ctx context.Context, routeID string) (transit.SavedJourney, error) {
	if err := s.require(SurfaceTrip); err != nil {
		return transit.SavedJourney{}, err
	}
	r, form, err := s.route(routeID)
	if err != nil {
		s.fb.Announce(ctx, msgRouteUnknown)
		return transit.SavedJourney{}, err
	}
	if s.svc.Journeys == nil {
		return transit.SavedJourney{}, errors.New("session: journey store not configured")
	}
	saved, err := s.svc.Journeys.SaveJourney(ctx, transit.SavedJourney{
		UserID:  s.userID,
		From:    form.From,
		To:      form.To,
		Time:    form.Time,
		Journey: r.Journey,
		Saved:   true,
	})
	if err != nil {
		slog.Error("session: save route failed", "user_id", s.userID, "route_id", routeID, "err", err)
		s.fb.Announce(ctx, msgSaveFailed)
		s.fb.Vibrate(ctx, feedback.PulseError)
		return transit.SavedJourney{}, fmt.Errorf("session: save route: %w", err)
	}
	s.fb.Announce(ctx, routeSaved(routeID))
	s.fb.Vibrate(ctx, feedback.PulseReady)
	return saved, nil
}

// RouteDetails announces the steps of one of the last planned routes.
func (s *Session) RouteDetails(ctx context.Context, routeID string) (string, error) {
	if err := s.require(SurfaceTrip); err != nil {
		return "", err
	}
	r, _, err := s.route(routeID)
	if err != nil {
		s.fb.Announce(ctx, msgRouteUnknown)
		return "", err
	}
	details := r.Details()
	s.fb.Announce(ctx, routeDetails(details))
	return details, nil
}

// SelectRoute records that the rider chose one of the last planned routes,
// which makes it familiar in later rankings.
func (s *Session) SelectRoute(ctx context.Context, routeID string) (transit.FamiliarityRecord, error) {
	if err := s.require(SurfaceTrip); err != nil {
		return transit.FamiliarityRecord{}, err
	}
	r, _, err := s.route(routeID)
	if err != nil {
		return transit.FamiliarityRecord{}, err
	}
	if s.fam == nil {
		return transit.FamiliarityRecord{Key: r.Key()}, nil
	}
	return s.fam.RecordUsage(ctx, s.userID, r.Key())
}
