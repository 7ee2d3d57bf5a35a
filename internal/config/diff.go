package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. The Changed
// fields can be applied to a running server; RestartRequired names the
// changed sections that only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged covers timeouts, the current-location label and the
	// feedback cue and pulse.
	VoiceChanged bool

	// FaresChanged covers prices, validity and currency.
	FaresChanged bool

	TopUpLocationsChanged bool
	StopCorrectionChanged bool

	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoiceChanged && !d.FaresChanged &&
		!d.TopUpLocationsChanged && !d.StopCorrectionChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.VoiceChanged = !reflect.DeepEqual(old.Voice, new.Voice)

	ot, nt := old.Tickets, new.Tickets
	d.FaresChanged = ot.Single != nt.Single || ot.Day != nt.Day || ot.Currency != nt.Currency
	d.TopUpLocationsChanged = !slices.Equal(ot.TopUpLocations, nt.TopUpLocations)
	d.StopCorrectionChanged = old.Planner.StopCorrection != new.Planner.StopCorrection

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.log_format", old.Server.LogFormat != new.Server.LogFormat)
	restart("server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS))
	restart("server.rate_limit", old.Server.RateLimit != new.Server.RateLimit)
	restart("server.allowed_origins", !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins))
	restart("planner.providers", !reflect.DeepEqual(old.Planner.Providers, new.Planner.Providers))
	restart("planner.network_file", old.Planner.NetworkFile != new.Planner.NetworkFile)
	restart("planner.circuit_breaker", old.Planner.CircuitBreaker != new.Planner.CircuitBreaker)
	restart("tickets.starting_balance_cents", ot.StartingBalanceCents != nt.StartingBalanceCents)
	restart("tickets.timezone", ot.Timezone != nt.Timezone)
	restart("storage", old.Storage != new.Storage)
	restart("familiarity", !reflect.DeepEqual(old.Familiarity, new.Familiarity))

	return d
}
