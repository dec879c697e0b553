package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.GridPoint("mod", "ok")
	m.GridPoint("mod", "ok")
	m.GridPoint("mod", "error")
	m.CacheLookup(true)
	m.WorkerFailure()
	m.AddSamples(10)
	m.ObserveTransform("mod", "kernel", "fit", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.GridPoints.WithLabelValues("mod", "ok")); got != 2 {
		t.Fatalf("grid points ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Samples); got != 10 {
		t.Fatalf("samples = %v, want 10", got)
	}
	if n := testutil.CollectAndCount(m.TransformSeconds); n != 1 {
		t.Fatalf("transform series = %d, want 1", n)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.GridPoint("mod", "ok")
	m.CacheLookup(false)
	m.WorkerFailure()
	m.AddSamples(1)
	m.ObserveTransform("mod", "t", "map", time.Second)
}

func TestMetrics_Context(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatal("empty context carries metrics")
	}
	m := NewMetrics(prometheus.NewRegistry())
	if got := FromContext(NewContext(context.Background(), m)); got != m {
		t.Fatalf("FromContext = %p, want %p", got, m)
	}
}
