package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiceql_http_requests_total",
			Help: "Total number of API requests, by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoiceql_http_request_duration_seconds",
			Help:    "API request latency by route pattern.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "invoiceql_http_requests_in_flight",
			Help: "API requests currently being served.",
		},
	)
	gateVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiceql_gate_verdicts_total",
			Help: "Safety gate verdicts for generated SQL, by outcome and rejecting rule.",
		},
		[]string{"outcome", "rule"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiceql_query_executions_total",
			Help: "Total number of database statements executed, by kind and status.",
		},
		[]string{"kind", "status"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoiceql_query_duration_seconds",
			Help:    "Database statement latency by kind.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiceql_translations_total",
			Help: "Total number of language model translation calls, by provider and status.",
		},
		[]string{"provider", "status"},
	)
	translationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoiceql_translation_duration_seconds",
			Help:    "Language model translation latency by provider.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider"},
	)
	askRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoiceql_ask_rate_limited_total",
			Help: "Total number of ask requests rejected by the rate limiter.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiceql_exports_total",
			Help: "Total number of parquet exports, by status.",
		},
		[]string{"status"},
	)
	exportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoiceql_export_rows_total",
			Help: "Total number of invoice rows written to parquet exports.",
		},
	)
	seedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoiceql_seed_documents_total",
			Help: "Extracted invoice documents processed by the seeder, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpRequestsInFlight,
		gateVerdictsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		translationsTotal,
		translationDurationSeconds,
		askRateLimitedTotal,
		exportsTotal,
		exportRowsTotal,
		seedDocumentsTotal,
	)
}

func ObserveGateVerdict(allowed bool, rule string) {
	if allowed {
		gateVerdictsTotal.WithLabelValues("allowed", "").Inc()
		return
	}
	gateVerdictsTotal.WithLabelValues("rejected", rule).Inc()
}

func ObserveQuery(kind string, elapsed time.Duration, err error) {
	queryExecutionsTotal.WithLabelValues(kind, statusLabel(err)).Inc()
	queryDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func ObserveTranslation(provider string, elapsed time.Duration, err error) {
	translationsTotal.WithLabelValues(provider, statusLabel(err)).Inc()
	translationDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func IncrementAskRateLimited() {
	askRateLimitedTotal.Inc()
}

func ObserveExport(rows int, err error) {
	exportsTotal.WithLabelValues(statusLabel(err)).Inc()
	if err == nil && rows > 0 {
		exportRowsTotal.Add(float64(rows))
	}
}

func ObserveSeed(inserted, skipped int) {
	if inserted > 0 {
		seedDocumentsTotal.WithLabelValues("inserted").Add(float64(inserted))
	}
	if skipped > 0 {
		seedDocumentsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
