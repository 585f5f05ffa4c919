package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK           = "ok"
	OutcomeNoSQL        = "no_sql"
	OutcomeCompletion   = "completion_error"
	OutcomeExecution    = "execution_error"
	OutcomeInvalidInput = "invalid_input"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosql_translations_total",
			Help: "Total number of natural-language questions translated, by outcome.",
		},
		[]string{"provider", "outcome"},
	)
	completionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autosql_completion_latency_ms",
			Help:    "Completion service round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"provider"},
	)
	completionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosql_completion_errors_total",
			Help: "Total number of completion failures, by kind.",
		},
		[]string{"provider", "kind"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosql_query_executions_total",
			Help: "Total number of SQL executions against uploaded datasets, by outcome.",
		},
		[]string{"engine", "outcome"},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autosql_query_duration_ms",
			Help:    "SQL execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"engine"},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosql_uploads_total",
			Help: "Total number of dataset uploads, by file format and outcome.",
		},
		[]string{"format", "outcome"},
	)
	uploadRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autosql_upload_rows",
			Help:    "Row count of successfully loaded datasets.",
			Buckets: prometheus.ExponentialBuckets(10, 10, 7),
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autosql_active_sessions",
			Help: "Current number of logged-in sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		completionLatencyMs,
		completionErrorsTotal,
		queryExecutionsTotal,
		queryDurationMs,
		uploadsTotal,
		uploadRows,
		activeSessions,
	)
}

func ObserveTranslation(provider, outcome string) {
	translationsTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveCompletion(provider string, elapsed time.Duration, errKind string) {
	completionLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
	if errKind != "" {
		completionErrorsTotal.WithLabelValues(provider, errKind).Inc()
	}
}

func ObserveQuery(engine, outcome string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(engine, outcome).Inc()
	if outcome == OutcomeOK {
		queryDurationMs.WithLabelValues(engine).Observe(float64(elapsed.Milliseconds()))
	}
}

func ObserveUpload(format, outcome string, rows int) {
	uploadsTotal.WithLabelValues(format, outcome).Inc()
	if outcome == OutcomeOK {
		uploadRows.Observe(float64(rows))
	}
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
