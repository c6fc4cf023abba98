package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

// WorkerMetrics covers the summarization stage: per-document outcomes, model
// calls, context overflow recovery and the breaker in front of the model.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	documentTotal     *prometheus.CounterVec
	documentDuration  *prometheus.HistogramVec
	documentInFlight  prometheus.Gauge
	modelCallTotal    *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec
	overflowTotal     *prometheus.CounterVec
	contextTokens     prometheus.Gauge
	reduceRounds      prometheus.Histogram
	breakerState      *prometheus.GaugeVec
	resumeTotal       *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	documentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "worker",
			Name:      "document_summarize_total",
			Help:      "Total summarized documents by type and status.",
		},
		[]string{"service", "doc_type", "status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dossier",
			Subsystem: "worker",
			Name:      "document_summarize_duration_seconds",
			Help:      "Document summarization duration in seconds by type.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"service", "doc_type"},
	)
	documentInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "dossier",
			Subsystem:   "worker",
			Name:        "document_summarize_in_flight",
			Help:        "Number of documents being summarized.",
			ConstLabels: constLabels,
		},
	)
	modelCallTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Total model calls by stage and status.",
		},
		[]string{"service", "stage", "status"},
	)
	modelCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dossier",
			Subsystem: "model",
			Name:      "call_duration_seconds",
			Help:      "Model call duration in seconds by stage.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		},
		[]string{"service", "stage"},
	)
	overflowTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "model",
			Name:      "context_overflow_total",
			Help:      "Total context overflow recoveries by stage.",
		},
		[]string{"service", "stage"},
	)
	contextTokens := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "dossier",
			Subsystem:   "model",
			Name:        "context_tokens",
			Help:        "Context budget in tokens after the last overflow.",
			ConstLabels: constLabels,
		},
	)
	reduceRounds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "dossier",
			Subsystem:   "summary",
			Name:        "reduce_rounds",
			Help:        "Reduce rounds needed per document.",
			Buckets:     []float64{0, 1, 2, 3, 4, 6, 8},
			ConstLabels: constLabels,
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dossier",
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	resumeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "worker",
			Name:      "resume_requests_total",
			Help:      "Total handled resume requests by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		documentTotal,
		documentDuration,
		documentInFlight,
		modelCallTotal,
		modelCallDuration,
		overflowTotal,
		contextTokens,
		reduceRounds,
		breakerState,
		resumeTotal,
	)

	return &WorkerMetrics{
		registry:          registry,
		service:           service,
		documentTotal:     documentTotal,
		documentDuration:  documentDuration,
		documentInFlight:  documentInFlight,
		modelCallTotal:    modelCallTotal,
		modelCallDuration: modelCallDuration,
		overflowTotal:     overflowTotal,
		contextTokens:     contextTokens,
		reduceRounds:      reduceRounds,
		breakerState:      breakerState,
		resumeTotal:       resumeTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.documentInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(docType string, duration time.Duration, err error) {
	m.documentInFlight.Dec()
	docType = labelOrUnknown(docType)

	m.documentTotal.WithLabelValues(m.service, docType, statusLabel(err)).Inc()
	m.documentDuration.WithLabelValues(m.service, docType).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveModelCall(stage string, duration time.Duration, err error) {
	stage = labelOrUnknown(stage)
	m.modelCallTotal.WithLabelValues(m.service, stage, statusLabel(err)).Inc()
	m.modelCallDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveOverflow(stage string, contextTokens int) {
	m.overflowTotal.WithLabelValues(m.service, labelOrUnknown(stage)).Inc()
	m.contextTokens.Set(float64(contextTokens))
}

func (m *WorkerMetrics) ObserveReduceRounds(rounds int) {
	if rounds < 0 {
		return
	}
	m.reduceRounds.Observe(float64(rounds))
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *WorkerMetrics) ObserveBreakerState(operation string, _, to gobreaker.State) {
	value := 0.0
	switch to {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func (m *WorkerMetrics) ObserveResumeRequest(err error) {
	m.resumeTotal.WithLabelValues(m.service, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
