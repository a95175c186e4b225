// Package observability provides Prometheus metrics and structured logging.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	LedgerCallLatency *prometheus.HistogramVec
	LedgerCallErrors  *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	LedgerEvents      *prometheus.CounterVec

	// Graph metrics
	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	RelationshipSetSize *prometheus.HistogramVec

	// Recommendation metrics
	RecommendationRuns   *prometheus.CounterVec
	CandidatesReturned   prometheus.Histogram
	SeedFetchFailures    prometheus.Counter
	MetadataUnavailable  prometheus.Counter

	// Mutation metrics
	MutationsTotal      *prometheus.CounterVec
	MutationItems       *prometheus.CounterVec
	FallbackActivations *prometheus.CounterVec

	// Persistence metrics
	DBQueryDuration     *prometheus.HistogramVec
	DBQueryErrors       *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "social_graph_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		LedgerCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LedgerCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_errors_total",
			Help:      "Total number of failed ledger RPC calls",
		}, []string{"method"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"breaker"}),
		LedgerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Relationship events received from the ledger subscription",
		}, []string{"kind"}),

		AggregationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "aggregations_total",
			Help:      "Total number of relationship aggregations by status",
		}, []string{"status"}),
		AggregationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "aggregation_duration_seconds",
			Help:      "Relationship aggregation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RelationshipSetSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "set_size",
			Help:      "Size of aggregated relationship sets",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"set"}),

		RecommendationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "runs_total",
			Help:      "Total number of recommendation runs by path",
		}, []string{"path"}),
		CandidatesReturned: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "candidates_returned",
			Help:      "Number of candidates returned per run",
			Buckets:   []float64{0, 1, 5, 10, 25, 50},
		}),
		SeedFetchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "seed_fetch_failures_total",
			Help:      "Seed neighborhood fetches that failed and were skipped",
		}),
		MetadataUnavailable: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "unavailable_total",
			Help:      "Profile metadata lookups that failed",
		}),

		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "requests_total",
			Help:      "Total number of mutation requests by mode",
		}, []string{"mode"}),
		MutationItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "items_total",
			Help:      "Mutation items by mode and status",
		}, []string{"mode", "status"}),
		FallbackActivations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "fallback_total",
			Help:      "Batch mutations that fell back to individual calls",
		}, []string{"mode"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "persistence_failures_total",
			Help:      "Persistence failures swallowed by callers",
		}, []string{"operation"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRPCCall records ledger call latency and failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.LedgerCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.LedgerCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordBreakerState updates the breaker state gauge.
func RecordBreakerState(name string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordLedgerEvent counts a relationship event from the subscription.
func RecordLedgerEvent(kind string) {
	DefaultMetrics.LedgerEvents.WithLabelValues(kind).Inc()
}

// RecordAggregation records an aggregation run and the resulting set sizes.
func RecordAggregation(seconds float64, followers, following, mutual int, err error) {
	DefaultMetrics.AggregationDuration.Observe(seconds)
	if err != nil {
		DefaultMetrics.AggregationsTotal.WithLabelValues("failed").Inc()
		return
	}
	DefaultMetrics.AggregationsTotal.WithLabelValues("ok").Inc()
	DefaultMetrics.RelationshipSetSize.WithLabelValues("followers").Observe(float64(followers))
	DefaultMetrics.RelationshipSetSize.WithLabelValues("following").Observe(float64(following))
	DefaultMetrics.RelationshipSetSize.WithLabelValues("mutual").Observe(float64(mutual))
}

// RecordRecommendation records a recommendation run.
// path is "network", "fallback" or "mixed".
func RecordRecommendation(path string, returned int) {
	DefaultMetrics.RecommendationRuns.WithLabelValues(path).Inc()
	DefaultMetrics.CandidatesReturned.Observe(float64(returned))
}

// RecordSeedFailure counts a skipped seed fetch.
func RecordSeedFailure() {
	DefaultMetrics.SeedFetchFailures.Inc()
}

// RecordMetadataUnavailable counts a failed profile lookup.
func RecordMetadataUnavailable() {
	DefaultMetrics.MetadataUnavailable.Inc()
}

// RecordMutation records a mutation request and its per-item outcomes.
func RecordMutation(mode string, statuses map[string]int, usedFallback bool) {
	DefaultMetrics.MutationsTotal.WithLabelValues(mode).Inc()
	for status, n := range statuses {
		DefaultMetrics.MutationItems.WithLabelValues(mode, status).Add(float64(n))
	}
	if usedFallback {
		DefaultMetrics.FallbackActivations.WithLabelValues(mode).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPersistenceFailure counts a swallowed persistence error.
func RecordPersistenceFailure(operation string) {
	DefaultMetrics.PersistenceFailures.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, method, status string, seconds float64) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(seconds)
}
