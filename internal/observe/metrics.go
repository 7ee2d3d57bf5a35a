// Package observe provides application-wide observability primitives for
// Wayfinder: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Wayfinder metrics.
const meterName = "github.com/MrWong99/wayfinder"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// VoiceSessionDuration tracks the time from listening start to the
	// session returning to idle. Use with attributes:
	//   attribute.String("surface", ...), attribute.String("outcome", ...)
	VoiceSessionDuration metric.Float64Histogram

	// PlanningDuration tracks journey planner latency. Use with attribute:
	//   attribute.String("provider", ...)
	PlanningDuration metric.Float64Histogram

	// --- Counters ---

	// Recognitions counts recognition cycles by outcome. Use with attributes:
	//   attribute.String("surface", ...), attribute.String("outcome", ...)
	Recognitions metric.Int64Counter

	// Intents counts parsed intents. Use with attributes:
	//   attribute.String("surface", ...), attribute.String("kind", ...)
	Intents metric.Int64Counter

	// PlanningRequests counts planner calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	PlanningRequests metric.Int64Counter

	// TicketPurchases counts purchase attempts. Use with attributes:
	//   attribute.String("type", ...), attribute.String("payment", ...),
	//   attribute.String("status", ...)
	TicketPurchases metric.Int64Counter

	// FeedbackEmissions counts feedback events. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("surface", ...)
	FeedbackEmissions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts planner provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts planner circuit breaker state changes. Use
	// with attributes:
	//   attribute.String("provider", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of voice sessions not in the idle
	// state.
	ActiveSessions metric.Int64UpDownCounter

	// FeedbackClients tracks connected feedback stream clients.
	FeedbackClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// planner calls and voice sessions, which are bounded by a 10 s timeout.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.VoiceSessionDuration, err = m.Float64Histogram("wayfinder.voice.session.duration",
		metric.WithDescription("Time from listening start until the voice session is idle again."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlanningDuration, err = m.Float64Histogram("wayfinder.planner.duration",
		metric.WithDescription("Latency of journey planning."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Recognitions, err = m.Int64Counter("wayfinder.voice.recognitions",
		metric.WithDescription("Total recognition cycles by surface and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("wayfinder.voice.intents",
		metric.WithDescription("Total parsed intents by surface and kind."),
	); err != nil {
		return nil, err
	}
	if met.PlanningRequests, err = m.Int64Counter("wayfinder.planner.requests",
		metric.WithDescription("Total planner requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.TicketPurchases, err = m.Int64Counter("wayfinder.tickets.purchases",
		metric.WithDescription("Total ticket purchase attempts by type, payment method and status."),
	); err != nil {
		return nil, err
	}
	if met.FeedbackEmissions, err = m.Int64Counter("wayfinder.feedback.emissions",
		metric.WithDescription("Total feedback emissions by kind and surface."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("wayfinder.provider.errors",
		metric.WithDescription("Total planner provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("wayfinder.planner.breaker.transitions",
		metric.WithDescription("Planner circuit breaker transitions by provider and new state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("wayfinder.active_sessions",
		metric.WithDescription("Number of voice sessions currently listening or processing."),
	); err != nil {
		return nil, err
	}
	if met.FeedbackClients, err = m.Int64UpDownCounter("wayfinder.feedback.clients",
		metric.WithDescription("Number of connected feedback stream clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wayfinder.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVoiceSession records a completed voice session cycle.
func (m *Metrics) RecordVoiceSession(ctx context.Context, surface, outcome string, d time.Duration) {
	m.VoiceSessionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRecognition records a recognition outcome ("recognized", "empty",
// "timeout" or "error").
func (m *Metrics) RecordRecognition(ctx context.Context, surface, outcome string) {
	m.Recognitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordIntent records a parsed intent of the given kind.
func (m *Metrics) RecordIntent(ctx context.Context, surface, kind string) {
	m.Intents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("kind", kind),
		),
	)
}

// RecordPlanning records a planner call with its latency.
func (m *Metrics) RecordPlanning(ctx context.Context, provider, status string, d time.Duration) {
	m.PlanningRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
	m.PlanningDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordTicketPurchase records a purchase attempt.
func (m *Metrics) RecordTicketPurchase(ctx context.Context, ticketType, payment, status string) {
	m.TicketPurchases.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", ticketType),
			attribute.String("payment", payment),
			attribute.String("status", status),
		),
	)
}

// RecordFeedback records a single feedback emission.
func (m *Metrics) RecordFeedback(ctx context.Context, kind, surface string) {
	m.FeedbackEmissions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("surface", surface),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition counts a planner breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}

// AddActiveSession adjusts the number of non-idle voice sessions on a
// surface by delta.
func (m *Metrics) AddActiveSession(ctx context.Context, surface string, delta int64) {
	m.ActiveSessions.Add(ctx, delta,
		metric.WithAttributes(attribute.String("surface", surface)),
	)
}
