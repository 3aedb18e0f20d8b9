package prometheus

import (
	"context"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		"restbind.execute.total":             "restbind_execute_total",
		" restbind.session.refreshed.total ": "restbind_session_refreshed_total",
		"9lives":                             "_9lives",
		"a-b c":                              "a_b_c",
		"":                                   "",
	}
	for in, want := range cases {
		if got := MetricName(in); got != want {
			t.Fatalf("expected %q for %q, got %q", want, in, got)
		}
	}
}

func TestRecorder_IncCounter(t *testing.T) {
	registry := prom.NewRegistry()
	recorder := NewRecorder(registry)
	ctx := context.Background()

	tags := map[string]string{"operation": "execute", "status": "success", "operation_id": "servers.list", "ignored": "x"}
	recorder.IncCounter(ctx, "restbind.execute.total", 1, tags)
	recorder.IncCounter(ctx, "restbind.execute.total", 2, tags)
	recorder.IncCounter(ctx, "restbind.execute.total", 1, map[string]string{"operation": "execute", "status": "failure"})

	vec := recorder.counters["restbind_execute_total"]
	if vec == nil {
		t.Fatalf("expected counter vector to be created")
	}
	got := testutil.ToFloat64(vec.WithLabelValues("execute", "success", "servers.list", "", "", "", ""))
	if got != 3 {
		t.Fatalf("expected success count 3, got %v", got)
	}
	if count := testutil.CollectAndCount(vec); count != 2 {
		t.Fatalf("expected 2 series, got %d", count)
	}
	if count, err := testutil.GatherAndCount(registry, "restbind_execute_total"); err != nil || count != 2 {
		t.Fatalf("expected 2 gathered series, got %d (%v)", count, err)
	}
}

func TestRecorder_ObserveHistogram(t *testing.T) {
	registry := prom.NewRegistry()
	recorder := NewRecorder(registry, WithBuckets([]float64{10, 100}))

	recorder.ObserveHistogram(context.Background(), "restbind.execute.duration_ms", 42, map[string]string{"operation": "execute", "status": "success"})

	if count := testutil.CollectAndCount(recorder.histograms["restbind_execute_duration_ms"]); count != 1 {
		t.Fatalf("expected one histogram series, got %d", count)
	}
	if count, err := testutil.GatherAndCount(registry, "restbind_execute_duration_ms"); err != nil || count != 1 {
		t.Fatalf("expected gathered histogram, got %d (%v)", count, err)
	}
}

func TestRecorder_SharesRegistry(t *testing.T) {
	registry := prom.NewRegistry()
	first := NewRecorder(registry)
	second := NewRecorder(registry)
	ctx := context.Background()
	tags := map[string]string{"operation": "session_refresh", "status": "success"}

	first.IncCounter(ctx, "restbind.session_refresh.total", 1, tags)
	second.IncCounter(ctx, "restbind.session_refresh.total", 1, tags)

	if len(second.Errors()) != 0 {
		t.Fatalf("expected no registration errors, got %v", second.Errors())
	}
	got := testutil.ToFloat64(first.counters["restbind_session_refresh_total"].WithLabelValues("session_refresh", "success", "", "", "", "", ""))
	if got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestRecorder_RecordsRegistrationConflict(t *testing.T) {
	registry := prom.NewRegistry()
	registry.MustRegister(prom.NewCounter(prom.CounterOpts{Name: "restbind_execute_total", Help: "conflicting"}))
	recorder := NewRecorder(registry)

	recorder.IncCounter(context.Background(), "restbind.execute.total", 1, nil)
	recorder.IncCounter(context.Background(), "restbind.execute.total", 1, nil)

	if len(recorder.Errors()) != 1 {
		t.Fatalf("expected one registration error, got %d", len(recorder.Errors()))
	}
}
