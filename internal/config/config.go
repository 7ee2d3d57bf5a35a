// Package config provides the configuration schema, loader, and planner
// provider registry for the Wayfinder server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Wayfinder server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the log handler.
type LogFormat string

const (
	// LogFormatText is slog's key=value text handler.
	LogFormatText LogFormat = "text"

	// LogFormatJSON is slog's JSON handler.
	LogFormatJSON LogFormat = "json"

	// LogFormatConsole is a colourised handler for terminals.
	LogFormatConsole LogFormat = "console"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatConsole:
		return true
	}
	return false
}

// Config is the root configuration structure for Wayfinder.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Voice       VoiceConfig       `yaml:"voice"`
	Planner     PlannerConfig     `yaml:"planner"`
	Tickets     TicketsConfig     `yaml:"tickets"`
	Storage     StorageConfig     `yaml:"storage"`
	Familiarity FamiliarityConfig `yaml:"familiarity"`
}

// ServerConfig holds network and logging settings for the Wayfinder server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text, json or console output.
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// RateLimit throttles each API client.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// AllowedOrigins lists the origin patterns accepted for the feedback
	// WebSocket. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RateLimitConfig is a per-client token bucket. A zero RequestsPerSecond
// disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// VoiceConfig bounds voice sessions and shapes their feedback.
type VoiceConfig struct {
	// ListenTimeout bounds the wait for a transcript.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// ProcessingTimeout bounds planner and ticket calls made for a
	// recognised command.
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// SessionTimeout bounds a whole cycle from start to idle.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// CurrentLocationLabel replaces a missing "from" clause.
	CurrentLocationLabel string `yaml:"current_location_label"`

	StartCue ToneConfig `yaml:"start_cue"`

	// ReadyPulse is the vibration played when a cycle ends, in
	// milliseconds.
	ReadyPulse []int `yaml:"ready_pulse"`
}

// ToneConfig describes the start-of-listening cue.
type ToneConfig struct {
	FrequencyHz float64       `yaml:"frequency_hz"`
	Duration    time.Duration `yaml:"duration"`
}

// PlannerConfig selects the journey planning backends.
type PlannerConfig struct {
	// Providers are tried in order; later entries are fallbacks.
	Providers []ProviderEntry `yaml:"providers"`

	// NetworkFile is the YAML network loaded by the catalog planner. Empty
	// means the built-in demo network.
	NetworkFile string `yaml:"network_file"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	StopCorrection StopCorrectionConfig `yaml:"stop_correction"`
}

// ProviderEntry configures one planner backend. The Name field is used to
// look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation ("catalog", "http").
	Name string `yaml:"name"`

	// BaseURL is the remote planner's address.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single request. Zero uses the implementation's
	// default.
	Timeout time.Duration `yaml:"timeout"`

	// Headers are added to every request, e.g. an API key.
	Headers map[string]string `yaml:"headers"`

	// Options holds implementation-specific values.
	Options map[string]any `yaml:"options"`
}

// CircuitBreakerConfig tunes the breaker in front of each planner.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// StopCorrectionConfig enables phonetic correction of spoken stop names.
type StopCorrectionConfig struct {
	Enabled           bool    `yaml:"enabled"`
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`
}

// TicketsConfig is the fare table.
type TicketsConfig struct {
	Single         FareConfig `yaml:"single"`
	Day            FareConfig `yaml:"day"`
	Currency       string     `yaml:"currency"`
	TopUpLocations []string   `yaml:"top_up_locations"`

	// StartingBalanceCents is the cash balance of a new rider's wallet.
	StartingBalanceCents int64 `yaml:"starting_balance_cents"`

	// Timezone names the IANA zone that defines the end of a day ticket's
	// day. Empty means the server's local zone.
	Timezone string `yaml:"timezone"`
}

// FareConfig prices one ticket type. Validity is ignored for day tickets.
type FareConfig struct {
	PriceCents int64         `yaml:"price_cents"`
	Validity   time.Duration `yaml:"validity"`
}

// StorageConfig selects persistence.
type StorageConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty means in-memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// ConnectAttempts bounds the startup connection attempts to
	// PostgreSQL, with exponential backoff between them.
	ConnectAttempts int `yaml:"connect_attempts"`

	// FeedbackFile is the JSON-lines file receiving app feedback. Empty
	// disables the feedback endpoint.
	FeedbackFile string `yaml:"feedback_file"`
}

// FamiliarityConfig seeds usage history for new riders of the in-memory
// store.
type FamiliarityConfig struct {
	Seed []FamiliaritySeed `yaml:"seed"`
}

// FamiliaritySeed is one pre-recorded journey usage.
type FamiliaritySeed struct {
	ID        string `yaml:"id"`
	Summary   string `yaml:"summary"`
	TimesUsed int    `yaml:"times_used"`
}

// Default returns the configuration used for every value a file leaves
// unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			LogFormat:  LogFormatText,
			RateLimit:  RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
		},
		Voice: VoiceConfig{
			ListenTimeout:        8 * time.Second,
			ProcessingTimeout:    5 * time.Second,
			SessionTimeout:       15 * time.Second,
			CurrentLocationLabel: "Current Location",
			StartCue:             ToneConfig{FrequencyHz: 800, Duration: 100 * time.Millisecond},
			ReadyPulse:           []int{100},
		},
		Planner: PlannerConfig{
			Providers: []ProviderEntry{{Name: "catalog"}},
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  3,
			},
			StopCorrection: StopCorrectionConfig{
				Enabled:           true,
				PhoneticThreshold: 0.70,
				FuzzyThreshold:    0.85,
			},
		},
		Tickets: TicketsConfig{
			Single:         FareConfig{PriceCents: 350, Validity: 90 * time.Minute},
			Day:            FareConfig{PriceCents: 1200},
			Currency:       "USD",
			TopUpLocations: []string{"Central Station", "Airport", "City Hall"},
		},
		Storage: StorageConfig{ConnectAttempts: 5},
	}
}
