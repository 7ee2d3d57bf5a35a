// Command wayfinder is the main entry point for the Wayfinder transit
// assistant server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/wayfinder/internal/app"
	"github.com/MrWong99/wayfinder/internal/config"
	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/internal/planner"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config is read")
	logLevel := flag.String("log-level", "", "override server.log_level (debug, info, warn, error)")
	watch := flag.Bool("watch", true, "reload the config file when it changes")
	flag.Parse()

	// ${VAR} references in the config may come from the dotenv file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "wayfinder: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wayfinder: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wayfinder: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(*logLevel)
		if !cfg.Server.LogLevel.IsValid() {
			fmt.Fprintf(os.Stderr, "wayfinder: invalid --log-level %q\n", *logLevel)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, level))

	slog.Info("wayfinder starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "wayfinder",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Planners ──────────────────────────────────────────────────────────────
	network := planner.DefaultNetwork()
	if path := cfg.Planner.NetworkFile; path != "" {
		if network, err = planner.LoadNetworkFile(path); err != nil {
			slog.Error("failed to load network file", "path", path, "err", err)
			return 1
		}
	}
	catalog := planner.NewCatalog(network)

	reg := config.NewRegistry()
	registerBuiltinPlanners(reg, catalog)

	planners, err := buildPlanners(cfg, reg)
	if err != nil {
		slog.Error("failed to build planners", "err", err)
		return 1
	}
	planners.Stops = catalog.Stops

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, planners, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
			application.ApplyConfig(next)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	code := 0
	if runErr != nil {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Planner wiring ────────────────────────────────────────────────────────────

// registerBuiltinPlanners wires the planner factories that ship with
// Wayfinder into reg. Every "catalog" entry shares catalog so that stop
// names and routes come from one network.
func registerBuiltinPlanners(reg *config.Registry, catalog *planner.Catalog) {
	reg.RegisterPlanner("catalog", func(config.ProviderEntry) (planner.Planner, error) {
		return catalog, nil
	})
	reg.RegisterPlanner("http", func(e config.ProviderEntry) (planner.Planner, error) {
		opts := []planner.HTTPOption{planner.WithTimeout(e.Timeout)}
		for k, v := range e.Headers {
			opts = append(opts, planner.WithHeader(k, v))
		}
		h, err := planner.NewHTTP(e.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

// buildPlanners instantiates every planner named in cfg, in failover order.
// Unregistered names are skipped with a warning.
func buildPlanners(cfg *config.Config, reg *config.Registry) (*app.Planners, error) {
	ps := &app.Planners{}
	for i, entry := range cfg.Planner.Providers {
		p, err := reg.CreatePlanner(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("planner not registered, skipping", "name", entry.Name, "known", reg.Names())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create planner %q: %w", entry.Name, err)
		}
		name := entry.Name
		if i > 0 {
			name = fmt.Sprintf("%s-%d", entry.Name, i)
		}
		ps.Backends = append(ps.Backends, app.Backend{Name: name, Planner: p})
		slog.Info("planner created", "name", name)
	}
	if len(ps.Backends) == 0 {
		return nil, errors.New("no usable planner configured")
	}
	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	names := make([]string, len(cfg.Planner.Providers))
	for i, p := range cfg.Planner.Providers {
		names[i] = p.Name
	}
	storage := "memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}
	tls := "(disabled)"
	if cfg.Server.TLS != nil {
		tls = "enabled"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Wayfinder startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Planners", strings.Join(names, " → "))
	printRow("Storage", storage)
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("TLS", tls)
	printRow("Currency", cfg.Tickets.Currency)
	printRow("Listen timeout", cfg.Voice.ListenTimeout.String())
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	switch format {
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case config.LogFormatConsole:
		return slog.New(tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}
