package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtriage"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	}, []string{"method", "route"})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "files",
		Name:      "uploads_total",
		Help:      "Uploaded files by result (accepted, rejected).",
	}, []string{"result"})

	AnalysisOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gigachat",
		Name:      "outcomes_total",
		Help:      "Model call outcomes by kind (parsed, malformed, timeout, failed).",
	}, []string{"kind"})

	AnalysisCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gigachat",
		Name:      "call_duration_seconds",
		Help:      "Latency of the chat completion call including token refresh.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 15, 20, 30},
	})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gigachat",
		Name:      "token_refreshes_total",
		Help:      "Access token exchanges by result (ok, error).",
	}, []string{"result"})

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gigachat",
		Name:      "breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "sessions_finished_total",
		Help:      "Analysis sessions reaching a terminal status.",
	}, []string{"status"})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "session_duration_seconds",
		Help:      "Wall time of one analysis session from in_progress to a terminal status.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	DiseaseUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "diseases",
		Name:      "upserts_total",
		Help:      "Disease history records created or refreshed.",
	})

	RedactedIdentifiers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlp",
		Name:      "redacted_identifiers_total",
		Help:      "Personal identifiers masked before text is sent for analysis, by type.",
	}, []string{"type"})

	AuditEventsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "events_stored_total",
		Help:      "Analysis lifecycle events persisted by the audit consumer, by type.",
	}, []string{"type"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
