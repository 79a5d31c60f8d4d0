// Package metrics provides Prometheus metrics for token brokering and task workflows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all access-client metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Token lifecycle
	TokenFetchesTotal       *prometheus.CounterVec // Token endpoint calls by result (success, failure)
	TokenCacheHitsTotal     prometheus.Counter     // GetToken calls served from cache
	TokenInvalidationsTotal prometheus.Counter     // Explicit or 401-driven invalidations

	// Upstream latency by operation and status ("error" when no response)
	UpstreamDurationSeconds *prometheus.HistogramVec

	// Workflow outcomes by kind (grant, revoke) and outcome
	WorkflowsTotal *prometheus.CounterVec

	// Adapter HTTP surface latency
	EndpointLatencySeconds *prometheus.HistogramVec
}

// New creates a Metrics instance registered against reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokenFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signaccess_token_fetches_total",
			Help: "Total number of token endpoint calls by result",
		}, []string{"result"}),

		TokenCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "signaccess_token_cache_hits_total",
			Help: "Total number of token requests served from the cache",
		}),

		TokenInvalidationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "signaccess_token_invalidations_total",
			Help: "Total number of cached token invalidations",
		}),

		UpstreamDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signaccess_upstream_request_duration_seconds",
			Help:    "Duration of calls to the access service by operation and status",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "status"}),

		WorkflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signaccess_workflows_total",
			Help: "Total number of access workflows by kind and outcome",
		}, []string{"kind", "outcome"}),

		EndpointLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signaccess_endpoint_latency_seconds",
			Help:    "Latency of adapter endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// RecordTokenFetch records a token endpoint call.
func (m *Metrics) RecordTokenFetch(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.TokenFetchesTotal.WithLabelValues(result).Inc()
}

// RecordTokenCacheHit records a token served without a network call.
func (m *Metrics) RecordTokenCacheHit() {
	if m == nil {
		return
	}
	m.TokenCacheHitsTotal.Inc()
}

// RecordInvalidation records a token invalidation.
func (m *Metrics) RecordInvalidation() {
	if m == nil {
		return
	}
	m.TokenInvalidationsTotal.Inc()
}

// ObserveUpstream records the duration of one upstream call.
func (m *Metrics) ObserveUpstream(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamDurationSeconds.WithLabelValues(op, status).Observe(seconds)
}

// RecordWorkflow records the terminal outcome of one workflow run.
func (m *Metrics) RecordWorkflow(kind, outcome string) {
	if m == nil {
		return
	}
	m.WorkflowsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveEndpointLatency records adapter endpoint latency.
func (m *Metrics) ObserveEndpointLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.EndpointLatencySeconds.WithLabelValues(endpoint).Observe(seconds)
}
