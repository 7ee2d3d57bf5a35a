package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/wayfinder/internal/app"
	"github.com/MrWong99/wayfinder/internal/config"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

// testConfig returns the default config with a starting balance and a
// feedback file in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Server.RateLimit = config.RateLimitConfig{}
	cfg.Tickets.StartingBalanceCents = 2000
	cfg.Storage.FeedbackFile = t.TempDir() + "/feedback.jsonl"
	return cfg
}

func catalogPlanners() *app.Planners {
	c := planner.NewCatalog(planner.DefaultNetwork())
	return &app.Planners{
		Backends: []app.Backend{{Name: "catalog", Planner: c}},
		Stops:    c.Stops,
	}
}

func newApp(t *testing.T, cfg *config.Config, planners *app.Planners, opts ...app.Option) (*app.App, *httptest.Server) {
	t.Helper()
	a, err := app.New(context.Background(), cfg, planners, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	})
	return a, srv
}

func request(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-User-ID", "rider-1")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestNew_RequiresPlanner(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(t), &app.Planners{}); err == nil {
		t.Fatal("expected error without planner backends")
	}
}

func TestNew_ServesEverySurface(t *testing.T) {
	t.Parallel()
	_, srv := newApp(t, testConfig(t), catalogPlanners())

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/status"} {
		if code := request(t, srv, http.MethodGet, path, nil, nil); code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, code)
		}
	}

	var wallet struct {
		Balance int64 `json:"balance"`
	}
	if code := request(t, srv, http.MethodGet, "/api/wallet", nil, &wallet); code != http.StatusOK || wallet.Balance != 2000 {
		t.Errorf("wallet = %d %+v, want starting balance 2000", code, wallet)
	}

	var stops struct {
		Stops []string `json:"stops"`
	}
	request(t, srv, http.MethodGet, "/api/transit/stops", nil, &stops)
	if len(stops.Stops) == 0 {
		t.Error("expected catalog stops")
	}

	fb := map[string]any{"rating": 5, "comments": "great"}
	if code := request(t, srv, http.MethodPost, "/api/feedback", fb, nil); code != http.StatusCreated {
		t.Errorf("POST /api/feedback = %d, want 201", code)
	}
}

type planResult struct {
	Routes []struct {
		ID         string `json:"id"`
		IsFamiliar bool   `json:"isFamiliar"`
	} `json:"routes"`
}

func TestNew_FailsOverToSecondPlanner(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	down := planner.Func(func(context.Context, planner.Request) ([]transit.Journey, error) {
		return nil, errors.New("connection refused")
	})
	c := planner.NewCatalog(planner.DefaultNetwork())
	planners := &app.Planners{
		Backends: []app.Backend{{Name: "http", Planner: down}, {Name: "catalog", Planner: c}},
		Stops:    c.Stops,
	}
	_, srv := newApp(t, cfg, planners)

	var res planResult
	code := request(t, srv, http.MethodPost, "/api/transit/plan", map[string]string{"from": "Airport", "to": "City Hall"}, &res)
	if code != http.StatusOK || len(res.Routes) != 4 {
		t.Fatalf("plan = %d with %d routes, want 200 with 4", code, len(res.Routes))
	}
}

func TestNew_SeedsFamiliarity(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Familiarity.Seed = []config.FamiliaritySeed{{ID: "4", Summary: "Bus 15 Express", TimesUsed: 7}}
	_, srv := newApp(t, cfg, catalogPlanners())

	var res planResult
	body := map[string]any{"from": "Airport", "to": "City Hall", "preferences": map[string]bool{"preferFamiliarRoutes": true}}
	request(t, srv, http.MethodPost, "/api/transit/plan", body, &res)
	if len(res.Routes) == 0 || res.Routes[0].ID != "4" || !res.Routes[0].IsFamiliar {
		t.Errorf("routes = %+v, want seeded route 4 first and familiar", res.Routes)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	level := new(slog.LevelVar)
	a, srv := newApp(t, cfg, catalogPlanners(), app.WithLogLevel(level))

	next := testConfig(t)
	next.Server.LogLevel = config.LogDebug
	next.Tickets.Single.PriceCents = 500
	next.Tickets.TopUpLocations = []string{"Harbour"}
	next.Voice.ListenTimeout = 4 * time.Second
	a.ApplyConfig(next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if a.Config() != next {
		t.Error("Config() did not return the applied config")
	}

	var bought struct {
		Ticket transit.Ticket `json:"ticket"`
	}
	req := map[string]string{"type": "single", "paymentMethod": "card"}
	if code := request(t, srv, http.MethodPost, "/api/tickets", req, &bought); code != http.StatusCreated {
		t.Fatalf("purchase = %d, want 201", code)
	}
	if bought.Ticket.PriceCents != 500 {
		t.Errorf("price = %d, want reloaded 500", bought.Ticket.PriceCents)
	}

	var locs struct {
		Locations []string `json:"locations"`
	}
	request(t, srv, http.MethodGet, "/api/wallet/top-up-locations", nil, &locs)
	if diff := cmp.Diff([]string{"Harbour"}, locs.Locations); diff != "" {
		t.Errorf("top-up locations mismatch (-want +got):\n%s", diff)
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), catalogPlanners(), app.WithStore(store.NewMemStore()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("healthz = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}
