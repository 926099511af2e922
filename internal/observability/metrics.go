package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/convotone/internal/reliability"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	latency  *latencyWindow

	HTTPRequests        *prometheus.CounterVec
	StoreOperations     *prometheus.CounterVec
	LogsDeleted         prometheus.Counter
	ToneRequests        *prometheus.CounterVec
	ToneAnalyzerLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		latency:  newLatencyWindow(256),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Log store operations by backend, operation and outcome.",
		}, []string{"backend", "operation", "outcome"}),
		LogsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_deleted_total",
			Help:      "Log documents removed by delete-all requests.",
		}),
		ToneRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tone_requests_total",
			Help:      "Tone requests by outcome.",
		}, []string{"outcome"}),
		ToneAnalyzerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tone_analyzer_latency_ms",
			Help:      "Round trip to the tone analyzer in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 6000},
		}),
	}
}

// ObserveStore records one store operation. Safe on a nil receiver.
func (m *Metrics) ObserveStore(backend, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(backend, operation, outcome(err)).Inc()
	m.latency.Record(ComponentStore, operation, d, err)
}

// ObserveToneAnalyzer records one round trip to the analyzer.
func (m *Metrics) ObserveToneAnalyzer(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ToneAnalyzerLatency.Observe(msOf(d))
	m.latency.Record(ComponentTone, operation, d, err)
}

func (m *Metrics) ObserveTone(result string) {
	if m == nil {
		return
	}
	m.ToneRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(operation string, err error) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) AddDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.LogsDeleted.Add(float64(n))
}

// SnapshotLatency returns rolling latency percentiles per operation.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{Operations: []LatencyStats{}}
	}
	return m.latency.Snapshot()
}

// Handler serves the exposition format. A nil Metrics serves an empty registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	return reliability.Classify(err)
}

func msOf(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
