package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

func TestInitProvider(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	exp := tracetest.NewInMemoryExporter()
	ctx := context.Background()
	shutdown, err := InitProvider(ctx, ProviderConfig{
		ServiceVersion: "test",
		TraceExporter:  exp,
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	counter, err := otel.Meter("provider-test").Int64Counter("provider_test_events")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(ctx, 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "provider_test_events") {
			found = true
		}
	}
	if !found {
		t.Error("counter not exported to the registry")
	}

	_, span := StartSpan(ctx, "exported")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "exported" {
		t.Fatalf("exported spans = %+v, want one named exported", spans)
	}
	res := spans[0].Resource
	if got := res.SchemaURL(); got != semconv.SchemaURL {
		t.Errorf("resource schema = %q, want %q", got, semconv.SchemaURL)
	}
	if v, ok := res.Set().Value(semconv.ServiceNameKey); !ok || v.AsString() != "wayfinder" {
		t.Errorf("service.name = %q, want wayfinder", v.AsString())
	}
}

func TestProviderConfig_Sampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "ParentBased{root:AlwaysOnSampler"},
		{1, "ParentBased{root:AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tc := range tests {
		got := ProviderConfig{TraceSampleRatio: tc.ratio}.sampler().Description()
		if !strings.HasPrefix(got, tc.want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", tc.ratio, got, tc.want)
		}
	}
	var _ sdktrace.Sampler = ProviderConfig{}.sampler()
}
