package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	TransformSeconds *prometheus.HistogramVec
	GridPoints       *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	WorkerFailures   prometheus.Counter
	Samples          prometheus.Counter
}

// NewMetrics builds and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransformSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "benchml",
			Name:      "transform_seconds",
			Help:      "Duration of one transform fit or map call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"module", "tag", "mode"}),
		GridPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "benchml",
			Name:      "grid_points_total",
			Help:      "Hyperparameter grid points evaluated, by outcome.",
		}, []string{"module", "status"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "benchml",
			Name:      "precompute_lookups_total",
			Help:      "Precompute cache lookups, by result.",
		}, []string{"result"}),
		WorkerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchml",
			Name:      "worker_failures_total",
			Help:      "Descriptor worker-pool batches aborted by a worker error.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benchml",
			Name:      "descriptor_samples_total",
			Help:      "Samples passed through descriptor evaluation.",
		}),
	}
	reg.MustRegister(m.TransformSeconds, m.GridPoints, m.CacheLookups, m.WorkerFailures, m.Samples)
	return m
}

func (m *Metrics) ObserveTransform(module, tag, mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransformSeconds.WithLabelValues(module, tag, mode).Observe(d.Seconds())
}

func (m *Metrics) GridPoint(module, status string) {
	if m == nil {
		return
	}
	m.GridPoints.WithLabelValues(module, status).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	m.CacheLookups.WithLabelValues(res).Inc()
}

func (m *Metrics) WorkerFailure() {
	if m == nil {
		return
	}
	m.WorkerFailures.Inc()
}

func (m *Metrics) AddSamples(n int) {
	if m == nil {
		return
	}
	m.Samples.Add(float64(n))
}

// Expose serves g on :port/metrics in the background.
func Expose(port int, g prometheus.Gatherer) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
}

type ctxKey struct{}

// NewContext returns ctx carrying m, for code below the module graph.
func NewContext(ctx context.Context, m *Metrics) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the metrics carried by ctx, or nil.
func FromContext(ctx context.Context) *Metrics {
	m, _ := ctx.Value(ctxKey{}).(*Metrics)
	return m
}
