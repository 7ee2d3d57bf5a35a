package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/wayfinder/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LiveChanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = config.LogDebug }, func(d config.ConfigDiff) bool {
			return d.LogLevelChanged && d.NewLogLevel == config.LogDebug
		}},
		{"listen timeout", func(c *config.Config) { c.Voice.ListenTimeout = 3 * time.Second }, func(d config.ConfigDiff) bool { return d.VoiceChanged }},
		{"ready pulse", func(c *config.Config) { c.Voice.ReadyPulse = []int{100, 50, 100} }, func(d config.ConfigDiff) bool { return d.VoiceChanged }},
		{"single price", func(c *config.Config) { c.Tickets.Single.PriceCents = 400 }, func(d config.ConfigDiff) bool { return d.FaresChanged }},
		{"currency", func(c *config.Config) { c.Tickets.Currency = "EUR" }, func(d config.ConfigDiff) bool { return d.FaresChanged }},
		{"top-up locations", func(c *config.Config) { c.Tickets.TopUpLocations = []string{"Harbour"} }, func(d config.ConfigDiff) bool { return d.TopUpLocationsChanged }},
		{"stop correction", func(c *config.Config) { c.Planner.StopCorrection.Enabled = false }, func(d config.ConfigDiff) bool { return d.StopCorrectionChanged }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			next := config.Default()
			tc.mutate(next)
			d := config.Diff(config.Default(), next)
			if !tc.check(d) {
				t.Errorf("diff = %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	next := config.Default()
	next.Server.ListenAddr = ":9999"
	next.Planner.Providers = append(next.Planner.Providers, config.ProviderEntry{Name: "http", BaseURL: "http://x"})
	next.Tickets.Timezone = "Europe/Berlin"
	next.Storage.PostgresDSN = "postgres://db"

	d := config.Diff(config.Default(), next)
	want := []string{"server.listen_addr", "planner.providers", "tickets.timezone", "storage"}
	got := slices.Clone(d.RestartRequired)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RestartRequired mismatch (-want +got):\n%s", diff)
	}
	if d.Empty() {
		t.Error("Empty() = true, want false")
	}
}
