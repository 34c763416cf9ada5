package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	PipelineDispatches *prometheus.CounterVec
	ChunksProcessed    *prometheus.CounterVec
	WorkerFailures     *prometheus.CounterVec
	PipelineLatency    *prometheus.HistogramVec
	TurnLatency        prometheus.Histogram
	BrainFallbacks     prometheus.Counter
	RiskAlerts         *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec

	// Stages keeps a rolling latency window per turn stage for the
	// /v1/perf/latency snapshot endpoint.
	Stages *StageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active therapy sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		PipelineDispatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_dispatches_total",
			Help:      "Parallel dispatch calls by pipeline kind (tts, stt).",
		}, []string{"kind"}),
		ChunksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_chunks_total",
			Help:      "Chunks/windows submitted to workers by pipeline kind.",
		}, []string{"kind"}),
		WorkerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_worker_failures_total",
			Help:      "Failed worker calls by pipeline kind.",
		}, []string{"kind"}),
		PipelineLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_ms",
			Help:      "Wall-clock pipeline latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"kind"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "therapy_turn_latency_ms",
			Help:      "End-to-end voice turn latency in milliseconds.",
			Buckets:   []float64{500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		BrainFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brain_fallbacks_total",
			Help:      "Times the fallback language model served a turn.",
		}),
		RiskAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_alerts_total",
			Help:      "Risk classifications by alert level.",
		}, []string{"level"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		Stages: NewStageWindow(256),
	}
}

func (m *Metrics) ObservePipelineLatency(kind string, d time.Duration) {
	m.PipelineLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
	m.Stages.Observe(kind, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
	m.Stages.Observe("turn_total", float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
