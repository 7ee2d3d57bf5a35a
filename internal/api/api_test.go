package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/wayfinder/internal/feedback"
	"github.com/MrWong99/wayfinder/internal/feedback/mock"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/session"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/internal/ticket"
)

type testEnv struct {
	srv *httptest.Server
	st  *store.MemStore
	ch  *mock.Channel
}

func newEnv(t *testing.T, mutate func(*Deps), opts ...Option) *testEnv {
	t.Helper()
	st := store.NewMemStore()
	catalog := planner.NewCatalog(planner.DefaultNetwork())
	ch := &mock.Channel{}
	mgr := session.NewManager(session.ManagerConfig{
		Services: session.Services{
			Planner:     catalog,
			Tickets:     ticket.New(st, st, ticket.DefaultFares()),
			Settings:    st,
			Familiarity: st,
			Journeys:    st,
		},
		Feedback: func(string, session.Surface) feedback.Channel { return ch },
	})
	d := Deps{
		Store:       st,
		Tickets:     ticket.New(st, st, ticket.DefaultFares()),
		Planner:     catalog,
		Sessions:    mgr,
		FeedbackLog: store.NewFeedbackLog(filepath.Join(t.TempDir(), "feedback.jsonl")),
		Stops:       catalog.Stops,
	}
	if mutate != nil {
		mutate(&d)
	}
	s := New(d, opts...)
	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
		_ = mgr.Shutdown(context.Background())
	})
	return &testEnv{srv: srv, st: st, ch: ch}
}

// do sends a request as user (no header when empty) and decodes the JSON
// response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, user string, body any, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type messageResp struct {
	Message string `json:"message"`
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	for _, path := range []string{"/api/tickets", "/api/settings", "/api/voice/trip"} {
		var got messageResp
		if code := e.do(t, http.MethodGet, path, "", nil, &got); code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, code)
		}
		if got.Message != "Authentication required" {
			t.Errorf("message = %q", got.Message)
		}
	}
}

type ticketResp struct {
	Ticket struct {
		TicketID      string `json:"ticketId"`
		Type          string `json:"type"`
		Price         int64  `json:"price"`
		PaymentMethod string `json:"paymentMethod"`
	} `json:"ticket"`
}

type walletResp struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

func TestTicketsAndWallet(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)

	if code := e.do(t, http.MethodPost, "/api/tickets", "u1", map[string]string{"type": "single", "paymentMethod": "cash"}, nil); code != http.StatusPaymentRequired {
		t.Errorf("cash purchase with empty wallet = %d, want 402", code)
	}

	var w walletResp
	if code := e.do(t, http.MethodPost, "/api/wallet/top-up", "u1", map[string]int64{"amount": 500}, &w); code != http.StatusOK || w.Balance != 500 {
		t.Fatalf("top-up = %d %+v", code, w)
	}

	var bought ticketResp
	if code := e.do(t, http.MethodPost, "/api/tickets", "u1", map[string]string{"type": "single", "paymentMethod": "cash"}, &bought); code != http.StatusCreated {
		t.Fatalf("purchase = %d", code)
	}
	if !strings.HasPrefix(bought.Ticket.TicketID, "TKT-") || bought.Ticket.Price != 350 {
		t.Errorf("ticket = %+v", bought.Ticket)
	}
	e.do(t, http.MethodGet, "/api/wallet", "u1", nil, &w)
	if w.Balance != 150 || w.Currency != "USD" {
		t.Errorf("wallet = %+v, want 150 USD", w)
	}

	var list struct {
		Tickets []json.RawMessage `json:"tickets"`
	}
	e.do(t, http.MethodGet, "/api/tickets/active", "u1", nil, &list)
	if len(list.Tickets) != 1 {
		t.Errorf("active tickets = %d, want 1", len(list.Tickets))
	}

	if code := e.do(t, http.MethodPost, "/api/tickets/"+bought.Ticket.TicketID+"/validate", "u1", nil, nil); code != http.StatusOK {
		t.Errorf("validate = %d", code)
	}
	var nf messageResp
	if code := e.do(t, http.MethodPost, "/api/tickets/"+bought.Ticket.TicketID+"/validate", "u2", nil, &nf); code != http.StatusNotFound || nf.Message != "Ticket not found" {
		t.Errorf("foreign validate = %d %q", code, nf.Message)
	}

	tests := []struct {
		name string
		path string
		body any
	}{
		{"unknown type", "/api/tickets", map[string]string{"type": "weekly"}},
		{"unknown field", "/api/tickets", map[string]string{"type": "single", "colour": "red"}},
		{"zero top-up", "/api/wallet/top-up", map[string]int64{"amount": 0}},
	}
	for _, tt := range tests {
		if code := e.do(t, http.MethodPost, tt.path, "u1", tt.body, nil); code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", tt.name, code)
		}
	}

	var locs struct {
		Locations []string `json:"locations"`
	}
	e.do(t, http.MethodGet, "/api/wallet/top-up-locations", "u1", nil, &locs)
	if diff := cmp.Diff([]string{"Central Station", "Airport", "City Hall"}, locs.Locations); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyValidatorAnnounces(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	if code := e.do(t, http.MethodPost, "/api/tickets/notify-validator", "u1", nil, nil); code != http.StatusOK {
		t.Fatalf("notify = %d", code)
	}
	if diff := cmp.Diff([]string{"Validator notified of digital ticket"}, e.ch.Announcements()); diff != "" {
		t.Errorf("announcements mismatch (-want +got):\n%s", diff)
	}
}

type routesResp struct {
	Routes []struct {
		ID         string `json:"id"`
		IsFamiliar bool   `json:"isFamiliar"`
		TimesUsed  int    `json:"timesUsed"`
	} `json:"routes"`
}

func routeIDs(r routesResp) []string {
	ids := make([]string, len(r.Routes))
	for i, rt := range r.Routes {
		ids[i] = rt.ID
	}
	return ids
}

func TestTransitPlan_UsesSettingsAndFamiliarity(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)

	var routes routesResp
	if code := e.do(t, http.MethodPost, "/api/transit/plan", "u1", map[string]any{"from": "Central Station", "to": "Airport"}, &routes); code != http.StatusOK {
		t.Fatalf("plan = %d", code)
	}
	if diff := cmp.Diff([]string{"1", "2", "3", "4"}, routeIDs(routes)); diff != "" {
		t.Errorf("default order mismatch (-want +got):\n%s", diff)
	}

	// Save and use route 4, then opt into familiar routes.
	var created struct {
		Journey struct {
			ID string `json:"id"`
		} `json:"journey"`
	}
	body := map[string]any{
		"from":    "Central Station",
		"to":      "Airport",
		"journey": map[string]any{"id": "4", "summary": "Bus 15 Express"},
		"saved":   true,
	}
	if code := e.do(t, http.MethodPost, "/api/journeys", "u1", body, &created); code != http.StatusCreated {
		t.Fatalf("create journey = %d", code)
	}
	if code := e.do(t, http.MethodPost, "/api/journeys/"+created.Journey.ID+"/select", "u1", nil, nil); code != http.StatusOK {
		t.Fatalf("select = %d", code)
	}
	if code := e.do(t, http.MethodPatch, "/api/settings", "u1", map[string]any{"preferences": map[string]bool{"preferFamiliarRoutes": true, "wheelchair": true}}, nil); code != http.StatusOK {
		t.Fatalf("patch settings = %d", code)
	}

	routes = routesResp{}
	e.do(t, http.MethodPost, "/api/transit/plan", "u1", map[string]any{"from": "Central Station", "to": "Airport"}, &routes)
	if diff := cmp.Diff([]string{"4", "1", "3"}, routeIDs(routes)); diff != "" {
		t.Errorf("familiar order mismatch (-want +got):\n%s", diff)
	}
	if !routes.Routes[0].IsFamiliar || routes.Routes[0].TimesUsed != 1 {
		t.Errorf("first route = %+v", routes.Routes[0])
	}

	if code := e.do(t, http.MethodPost, "/api/transit/plan", "u1", map[string]any{"from": "Central Station"}, nil); code != http.StatusBadRequest {
		t.Errorf("plan without destination = %d, want 400", code)
	}
	if code := e.do(t, http.MethodPost, "/api/journeys/nope/select", "u1", nil, nil); code != http.StatusNotFound {
		t.Errorf("select unknown = %d, want 404", code)
	}

	var saved struct {
		Journeys []json.RawMessage `json:"journeys"`
	}
	e.do(t, http.MethodGet, "/api/journeys/saved", "u1", nil, &saved)
	if len(saved.Journeys) != 1 {
		t.Errorf("saved journeys = %d, want 1", len(saved.Journeys))
	}
}

func TestAlertsSettingsFeedback(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)

	var created struct {
		Alert struct {
			ID string `json:"id"`
		} `json:"alert"`
	}
	if code := e.do(t, http.MethodPost, "/api/alerts", "u1", map[string]string{"title": "Delay", "message": "Bus 12 is late"}, &created); code != http.StatusCreated {
		t.Fatalf("create alert = %d", code)
	}
	if code := e.do(t, http.MethodPost, "/api/alerts", "u1", map[string]string{"title": "Delay"}, nil); code != http.StatusBadRequest {
		t.Errorf("alert without message = %d, want 400", code)
	}
	if code := e.do(t, http.MethodPatch, "/api/alerts/"+created.Alert.ID+"/read", "u1", nil, nil); code != http.StatusOK {
		t.Errorf("mark read = %d", code)
	}
	if code := e.do(t, http.MethodPatch, "/api/alerts/"+created.Alert.ID+"/read", "u2", nil, nil); code != http.StatusNotFound {
		t.Errorf("foreign mark read = %d, want 404", code)
	}

	var st struct {
		Settings struct {
			Language string `json:"language"`
			Haptics  bool   `json:"haptics"`
		} `json:"settings"`
	}
	e.do(t, http.MethodPatch, "/api/settings", "u1", map[string]any{"language": "de"}, &st)
	if st.Settings.Language != "de" || !st.Settings.Haptics {
		t.Errorf("patched settings = %+v", st.Settings)
	}

	if code := e.do(t, http.MethodPost, "/api/feedback", "u1", map[string]any{"rating": 6}, nil); code != http.StatusBadRequest {
		t.Errorf("rating 6 = %d, want 400", code)
	}
	if code := e.do(t, http.MethodPost, "/api/feedback", "u1", map[string]any{"rating": 5, "comments": "great"}, nil); code != http.StatusCreated {
		t.Errorf("feedback = %d, want 201", code)
	}

	noLog := newEnv(t, func(d *Deps) { d.FeedbackLog = nil })
	if code := noLog.do(t, http.MethodPost, "/api/feedback", "u1", map[string]any{"rating": 5}, nil); code != http.StatusServiceUnavailable {
		t.Errorf("feedback without log = %d, want 503", code)
	}
}

type sessionResp struct {
	Session session.Snapshot `json:"session"`
}

func TestVoiceNavigation(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)

	if code := e.do(t, http.MethodPost, "/api/voice/navigation/transcript", "u1", map[string]string{"transcript": "help"}, nil); code != http.StatusConflict {
		t.Errorf("transcript while idle = %d, want 409", code)
	}

	var started sessionResp
	if code := e.do(t, http.MethodPost, "/api/voice/navigation/start", "u1", nil, &started); code != http.StatusAccepted {
		t.Fatalf("start = %d", code)
	}
	if started.Session.State != "listening" {
		t.Errorf("state after start = %q", started.Session.State)
	}
	if code := e.do(t, http.MethodPost, "/api/voice/navigation/start", "u1", nil, nil); code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", code)
	}

	var done sessionResp
	if code := e.do(t, http.MethodPost, "/api/voice/navigation/transcript", "u1", map[string]string{"transcript": "go to account"}, &done); code != http.StatusOK {
		t.Fatalf("transcript = %d", code)
	}
	if done.Session.Navigation == nil || done.Session.Navigation.Path != "/account" || done.Session.State != "idle" {
		t.Errorf("session = %+v", done.Session)
	}
	if diff := cmp.Diff([]string{"Navigated to Account"}, e.ch.Announcements()); diff != "" {
		t.Errorf("announcements mismatch (-want +got):\n%s", diff)
	}

	if code := e.do(t, http.MethodGet, "/api/voice/map", "u1", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown surface = %d, want 404", code)
	}
	if code := e.do(t, http.MethodDelete, "/api/voice/navigation", "u1", nil, nil); code != http.StatusNoContent {
		t.Errorf("close = %d, want 204", code)
	}
}

func TestVoiceTripRoutes(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)

	if code := e.do(t, http.MethodPut, "/api/voice/trip/form", "u1", map[string]string{"from": "University", "to": "Airport"}, nil); code != http.StatusOK {
		t.Fatalf("form = %d", code)
	}
	var routes routesResp
	if code := e.do(t, http.MethodPost, "/api/voice/trip/plan", "u1", nil, &routes); code != http.StatusOK || len(routes.Routes) != 4 {
		t.Fatalf("plan = %d, %d routes", code, len(routes.Routes))
	}
	if code := e.do(t, http.MethodPost, "/api/voice/trip/routes/3/save", "u1", nil, nil); code != http.StatusCreated {
		t.Errorf("save = %d", code)
	}
	var details struct {
		Details string `json:"details"`
	}
	if code := e.do(t, http.MethodPost, "/api/voice/trip/routes/3/details", "u1", nil, &details); code != http.StatusOK || details.Details == "" {
		t.Errorf("details = %d %q", code, details.Details)
	}
	if code := e.do(t, http.MethodPost, "/api/voice/trip/routes/99/details", "u1", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown route = %d, want 404", code)
	}
	if code := e.do(t, http.MethodPost, "/api/voice/trip/plan", "u1", map[string]string{"from": "University"}, nil); code != http.StatusBadRequest {
		t.Errorf("plan without destination = %d, want 400", code)
	}

	got := e.ch.Announcements()
	want := []string{
		"Planning journey from University to Airport",
		"Found 4 route options",
		"Route 3 saved for later use",
	}
	if len(got) < len(want) || !cmp.Equal(want, got[:len(want)]) {
		t.Errorf("announcements = %q, want prefix %q", got, want)
	}
}

func TestVoiceTicketPurchase(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	if code := e.do(t, http.MethodPost, "/api/voice/ticket/purchase", "u1", map[string]string{"type": "day", "paymentMethod": "cash"}, nil); code != http.StatusPaymentRequired {
		t.Errorf("cash purchase = %d, want 402", code)
	}
	if diff := cmp.Diff([]string{"Insufficient cash balance. Please top up or use a card."}, e.ch.Announcements()); diff != "" {
		t.Errorf("announcements mismatch (-want +got):\n%s", diff)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil, WithRateLimit(0.001, 2))
	for i := range 2 {
		if code := e.do(t, http.MethodGet, "/api/settings", "u1", nil, nil); code != http.StatusOK {
			t.Fatalf("request %d = %d", i, code)
		}
	}
	if code := e.do(t, http.MethodGet, "/api/settings", "u1", nil, nil); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
	if code := e.do(t, http.MethodGet, "/api/settings", "u2", nil, nil); code != http.StatusOK {
		t.Errorf("other user = %d, want 200", code)
	}
}

func TestCueWAV(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	resp, err := e.srv.Client().Get(e.srv.URL + "/api/feedback/cue.wav")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("status = %d, content type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	head := make([]byte, 4)
	if _, err := resp.Body.Read(head); err != nil || string(head) != "RIFF" {
		t.Errorf("body starts with %q, want RIFF", head)
	}
}

func TestStops(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	var got struct {
		Stops []string `json:"stops"`
	}
	e.do(t, http.MethodGet, "/api/transit/stops", "u1", nil, &got)
	if len(got.Stops) == 0 {
		t.Error("no stops listed")
	}
}
