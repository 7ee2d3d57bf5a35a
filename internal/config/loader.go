package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the planner implementations that ship with
// Wayfinder. Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"catalog", "http"}

// envRef matches ${VAR} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. ${VAR} references are replaced with environment values
// before decoding; unset variables expand to the empty string. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = ExpandEnv(raw)

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${VAR} in data with the variable's value.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		return []byte(os.Getenv(name))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, console", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.requests_per_second %v must not be negative", cfg.Server.RateLimit.RequestsPerSecond))
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 && cfg.Server.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("server.rate_limit.burst must be at least 1 when throttling is enabled"))
	}

	// Voice
	v := cfg.Voice
	errs = appendPositive(errs, "voice.listen_timeout", v.ListenTimeout)
	errs = appendPositive(errs, "voice.processing_timeout", v.ProcessingTimeout)
	errs = appendPositive(errs, "voice.session_timeout", v.SessionTimeout)
	if v.SessionTimeout > 0 && v.SessionTimeout < v.ListenTimeout {
		errs = append(errs, fmt.Errorf("voice.session_timeout %s is shorter than voice.listen_timeout %s", v.SessionTimeout, v.ListenTimeout))
	}
	if v.StartCue.FrequencyHz <= 0 {
		errs = append(errs, fmt.Errorf("voice.start_cue.frequency_hz %v must be positive", v.StartCue.FrequencyHz))
	}
	errs = appendPositive(errs, "voice.start_cue.duration", v.StartCue.Duration)
	for i, ms := range v.ReadyPulse {
		if ms <= 0 {
			errs = append(errs, fmt.Errorf("voice.ready_pulse[%d] %d must be a positive number of milliseconds", i, ms))
		}
	}

	// Planner
	if len(cfg.Planner.Providers) == 0 {
		errs = append(errs, errors.New("planner.providers must list at least one provider"))
	}
	for i, p := range cfg.Planner.Providers {
		prefix := fmt.Sprintf("planner.providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(p.Name)
		if p.Name == "http" && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the http planner", prefix))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, p.Timeout))
		}
	}
	cb := cfg.Planner.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("planner.circuit_breaker values must not be negative"))
	}
	sc := cfg.Planner.StopCorrection
	for _, th := range []struct {
		name  string
		value float64
	}{{"phonetic_threshold", sc.PhoneticThreshold}, {"fuzzy_threshold", sc.FuzzyThreshold}} {
		if th.value < 0 || th.value > 1 {
			errs = append(errs, fmt.Errorf("planner.stop_correction.%s %.2f is out of range [0, 1]", th.name, th.value))
		}
	}

	// Tickets
	t := cfg.Tickets
	if t.Single.PriceCents <= 0 {
		errs = append(errs, fmt.Errorf("tickets.single.price_cents %d must be positive", t.Single.PriceCents))
	}
	errs = appendPositive(errs, "tickets.single.validity", t.Single.Validity)
	if t.Day.PriceCents <= 0 {
		errs = append(errs, fmt.Errorf("tickets.day.price_cents %d must be positive", t.Day.PriceCents))
	}
	if t.Currency == "" {
		errs = append(errs, errors.New("tickets.currency is required"))
	}
	if t.StartingBalanceCents < 0 {
		errs = append(errs, fmt.Errorf("tickets.starting_balance_cents %d must not be negative", t.StartingBalanceCents))
	}
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("tickets.timezone %q: %w", t.Timezone, err))
		}
	}

	// Storage
	if cfg.Storage.ConnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("storage.connect_attempts %d must not be negative", cfg.Storage.ConnectAttempts))
	}

	// Familiarity
	for i, s := range cfg.Familiarity.Seed {
		prefix := fmt.Sprintf("familiarity.seed[%d]", i)
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		}
		if s.TimesUsed < 0 {
			errs = append(errs, fmt.Errorf("%s.times_used %d must not be negative", prefix, s.TimesUsed))
		}
	}
	if len(cfg.Familiarity.Seed) > 0 && cfg.Storage.PostgresDSN != "" {
		slog.Warn("familiarity.seed only applies to the in-memory store and is ignored with postgres")
	}

	return errors.Join(errs...)
}

func appendPositive(errs []error, field string, d time.Duration) []error {
	if d <= 0 {
		return append(errs, fmt.Errorf("%s %s must be positive", field, d))
	}
	return errs
}

// validateProviderName logs a warning if name is not a built-in planner.
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown planner provider name; may be a typo or a custom registration",
		"name", name,
		"known", ValidProviderNames,
	)
}
