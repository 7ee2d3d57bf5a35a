package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/wayfinder/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json
  rate_limit:
    requests_per_second: 5
    burst: 10
  allowed_origins: ["app.example.com"]
voice:
  listen_timeout: 6s
  processing_timeout: 4s
  session_timeout: 20s
  current_location_label: "My Location"
  start_cue:
    frequency_hz: 660
    duration: 150ms
  ready_pulse: [50, 50]
planner:
  providers:
    - name: http
      base_url: https://planner.example.com
      timeout: 3s
      headers:
        X-Api-Key: ${WAYFINDER_TEST_PLANNER_KEY}
    - name: catalog
  network_file: network.yaml
  circuit_breaker:
    max_failures: 3
    reset_timeout: 10s
    half_open_max: 1
  stop_correction:
    enabled: true
    phonetic_threshold: 0.6
    fuzzy_threshold: 0.8
tickets:
  single:
    price_cents: 300
    validity: 2h
  day:
    price_cents: 1000
  currency: EUR
  top_up_locations: [Hauptbahnhof]
  starting_balance_cents: 2000
  timezone: Europe/Berlin
storage:
  feedback_file: /var/lib/wayfinder/feedback.jsonl
familiarity:
  seed:
    - id: "Line 1 Express"
      times_used: 12
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_PLANNER_KEY", "secret")

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Voice.ListenTimeout != 6*time.Second || cfg.Voice.StartCue.Duration != 150*time.Millisecond {
		t.Errorf("voice = %+v", cfg.Voice)
	}
	wantProviders := []config.ProviderEntry{
		{
			Name:    "http",
			BaseURL: "https://planner.example.com",
			Timeout: 3 * time.Second,
			Headers: map[string]string{"X-Api-Key": "secret"},
		},
		{Name: "catalog"},
	}
	if diff := cmp.Diff(wantProviders, cfg.Planner.Providers); diff != "" {
		t.Errorf("providers mismatch (-want +got):\n%s", diff)
	}
	if cfg.Tickets.Single.Validity != 2*time.Hour || cfg.Tickets.Currency != "EUR" {
		t.Errorf("tickets = %+v", cfg.Tickets)
	}
	if diff := cmp.Diff([]config.FamiliaritySeed{{ID: "Line 1 Express", TimesUsed: 12}}, cfg.Familiarity.Seed); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_DefaultsFillGaps(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("server:\n  listen_addr: \":1234\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := config.Default()
	want.Server.ListenAddr = ":1234"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	empty, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty document: %v", err)
	}
	if diff := cmp.Diff(config.Default(), empty); diff != "" {
		t.Errorf("empty document mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", "server:\n  port: 80\n", "field port not found"},
		{"bad log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"bad log format", "server:\n  log_format: xml\n", "server.log_format"},
		{"tls half set", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"burst missing", "server:\n  rate_limit:\n    requests_per_second: 1\n    burst: 0\n", "burst"},
		{"zero listen timeout", "voice:\n  listen_timeout: 0s\n", "voice.listen_timeout"},
		{"session shorter than listen", "voice:\n  session_timeout: 2s\n", "voice.session_timeout"},
		{"bad pulse", "voice:\n  ready_pulse: [100, 0]\n", "voice.ready_pulse[1]"},
		{"no providers", "planner:\n  providers: []\n", "at least one provider"},
		{"http without url", "planner:\n  providers:\n    - name: http\n", "base_url"},
		{"threshold out of range", "planner:\n  stop_correction:\n    fuzzy_threshold: 1.5\n", "fuzzy_threshold"},
		{"free single", "tickets:\n  single:\n    price_cents: 0\n    validity: 1h\n", "tickets.single.price_cents"},
		{"bad timezone", "tickets:\n  timezone: Mars/Olympus\n", "tickets.timezone"},
		{"seed without id", "familiarity:\n  seed:\n    - times_used: 2\n", "familiarity.seed[0].id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Tickets.Currency = ""
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "tickets.currency"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, missing %q", err, want)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_DSN", "postgres://db/wayfinder")

	got := string(config.ExpandEnv([]byte("dsn: ${WAYFINDER_TEST_DSN}\nkey: ${WAYFINDER_TEST_UNSET}\ncost: $5")))
	want := "dsn: postgres://db/wayfinder\nkey: \ncost: $5"
	if got != want {
		t.Errorf("ExpandEnv = %q, want %q", got, want)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wayfinder.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log level = %q, want warn", cfg.Server.LogLevel)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("WAYFINDER_PLANNER_URL", "https://planner.example.com")
	t.Setenv("WAYFINDER_PLANNER_TOKEN", "token")
	t.Setenv("WAYFINDER_POSTGRES_DSN", "")

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load(example.yaml): %v", err)
	}
	if got := cfg.Planner.Providers[0].Headers["Authorization"]; got != "Bearer token" {
		t.Errorf("Authorization header = %q", got)
	}
	if cfg.Storage.PostgresDSN != "" {
		t.Errorf("postgres_dsn = %q, want empty", cfg.Storage.PostgresDSN)
	}
}
