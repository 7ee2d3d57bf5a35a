package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/wayfinder/internal/config"
	"github.com/MrWong99/wayfinder/internal/planner"
)

func TestBuildPlanners(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinPlanners(reg, planner.NewCatalog(planner.DefaultNetwork()))

	cfg := config.Default()
	cfg.Planner.Providers = []config.ProviderEntry{
		{Name: "http", BaseURL: "http://planner.invalid"},
		{Name: "otp"},
		{Name: "catalog"},
	}
	ps, err := buildPlanners(cfg, reg)
	if err != nil {
		t.Fatalf("buildPlanners: %v", err)
	}
	var names []string
	for _, b := range ps.Backends {
		names = append(names, b.Name)
	}
	if got := strings.Join(names, ","); got != "http,catalog-2" {
		t.Errorf("backends = %s, want http,catalog-2", got)
	}

	cfg.Planner.Providers = []config.ProviderEntry{{Name: "otp"}}
	if _, err := buildPlanners(cfg, reg); err == nil {
		t.Error("expected error when no planner is usable")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)

	var buf bytes.Buffer
	log := newLogger(&buf, config.LogFormatJSON, level)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, config.LogFormatConsole, level).Warn("console")
	if !strings.Contains(buf.String(), "console") {
		t.Errorf("console output = %q", buf.String())
	}
}
