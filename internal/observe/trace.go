package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/wayfinder"

// Tracer returns the Wayfinder tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartVoiceSpan starts the span covering the processing step of one
// recognition cycle.
func StartVoiceSpan(ctx context.Context, sessionID, surface string) (context.Context, trace.Span) {
	return StartSpan(ctx, "voice.process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("voice.surface", surface),
		),
	)
}

// StartPlanSpan starts a client span around one journey planner call.
func StartPlanSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return StartSpan(ctx, "planner.plan",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("planner.provider", provider)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// It is echoed to clients as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
