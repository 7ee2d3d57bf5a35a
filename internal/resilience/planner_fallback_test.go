package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/internal/planner"
	"github.com/MrWong99/wayfinder/internal/planner/mock"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

func TestPlannerFallback_FailsOverToCatalog(t *testing.T) {
	t.Parallel()

	remote := &mock.Planner{Err: errTest}
	catalog := &mock.Planner{Journeys: []transit.Journey{{ID: "3", Summary: "Metro Red Line direct"}}}

	f := NewPlannerFallback(remote, "http", CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}, nil)
	f.AddFallback("catalog", catalog)

	req := planner.Request{From: "Home", To: "Airport"}
	got, err := f.PlanJourney(context.Background(), req)
	if err != nil {
		t.Fatalf("PlanJourney: %v", err)
	}
	if len(got) != 1 || got[0].ID != "3" {
		t.Errorf("journeys = %+v, want catalog result", got)
	}
	if diff := cmp.Diff([]planner.Request{req}, remote.Calls()); diff != "" {
		t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
	}

	// The remote breaker is now open; the next call skips it.
	if _, err := f.PlanJourney(context.Background(), req); err != nil {
		t.Fatalf("second PlanJourney: %v", err)
	}
	if n := remote.CallCount(); n != 1 {
		t.Errorf("remote calls = %d, want 1 (breaker open)", n)
	}
	want := []BreakerStatus{{Name: "http", State: "open", Failures: 1}, {Name: "catalog", State: "closed"}}
	if diff := cmp.Diff(want, f.Status()); diff != "" {
		t.Errorf("Status mismatch (-want +got):\n%s", diff)
	}
	if !f.Available() {
		t.Error("Available = false, want true")
	}
}

func TestPlannerFallback_NoRoutesIsFinal(t *testing.T) {
	t.Parallel()

	remote := &mock.Planner{Err: planner.ErrNoRoutes}
	catalog := &mock.Planner{Journeys: []transit.Journey{{ID: "1"}}}

	f := NewPlannerFallback(remote, "http", CircuitBreakerConfig{MaxFailures: 1}, nil)
	f.AddFallback("catalog", catalog)

	_, err := f.PlanJourney(context.Background(), planner.Request{To: "Moon"})
	if !errors.Is(err, planner.ErrNoRoutes) {
		t.Fatalf("err = %v, want ErrNoRoutes", err)
	}
	if catalog.CallCount() != 0 {
		t.Error("catalog was asked after a final answer")
	}
	if s := f.Status()[0].State; s != "closed" {
		t.Errorf("remote breaker = %s, want closed", s)
	}
}

func TestPlannerFallback_AllFail(t *testing.T) {
	t.Parallel()

	f := NewPlannerFallback(&mock.Planner{Err: errTest}, "http", CircuitBreakerConfig{}, nil)
	_, err := f.PlanJourney(context.Background(), planner.Request{To: "Airport"})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestPlannerFallback_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := NewPlannerFallback(&mock.Planner{Err: errTest}, "http", CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}, m)
	f.AddFallback("catalog", &mock.Planner{Journeys: []transit.Journey{{ID: "1"}}})

	for range 2 {
		if _, err := f.PlanJourney(context.Background(), planner.Request{To: "Airport"}); err != nil {
			t.Fatalf("PlanJourney: %v", err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				label := met.Name
				for _, kv := range dp.Attributes.ToSlice() {
					label += " " + string(kv.Key) + "=" + kv.Value.Emit()
				}
				got[label] += dp.Value
			}
		}
	}
	want := map[string]int64{
		"wayfinder.provider.errors kind=error provider=http":             1,
		"wayfinder.provider.errors kind=circuit_open provider=http":      1,
		"wayfinder.planner.breaker.transitions provider=http state=open": 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}
