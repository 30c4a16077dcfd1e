// Package services provides the protocol engine built on the core ports.
package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Document cache metrics
	documentCacheHitsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fan_document_cache_hits_total",
		Help: "Total number of document cache hits",
	}, []string{"kind"}) // kind: agent, subject

	documentCacheMissesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fan_document_cache_misses_total",
		Help: "Total number of document cache misses",
	}, []string{"kind"})

	// Resolution metrics
	resolveCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fan_resolve_total",
		Help: "Total number of document resolutions",
	}, []string{"kind", "result"}) // kind: agent, subject, sovereign; result: success, failure

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fan_resolve_duration_seconds",
		Help:    "Duration of document resolution operations",
		Buckets: prometheus.DefBuckets,
	})

	// Fetch metrics
	fetchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fan_fetch_total",
		Help: "Total number of document fetches",
	}, []string{"kind", "status"}) // status: ok, not_modified, failure

	// Trust verification metrics
	verificationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fan_verification_total",
		Help: "Total number of document trust verifications",
	}, []string{"role", "result"}) // role: agent, subject, sovereign

	// Challenge attempt metrics
	attemptsIssuedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fan_attempts_issued_total",
		Help: "Total number of authentication challenges issued",
	})

	attemptOutcomeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fan_attempt_outcomes_total",
		Help: "Total number of challenge responses by outcome",
	}, []string{"outcome"}) // outcome: succeeded, failed, expired, unknown, signature_invalid

	pendingAttemptsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fan_pending_attempts",
		Help: "Number of authentication attempts currently pending",
	})

	sweptAttemptsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fan_swept_attempts_total",
		Help: "Total number of attempt records expired or dropped by the sweeper",
	})
)

// MetricsReporter interface for reporting metrics
type MetricsReporter interface {
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
	RecordResolve(kind string, success bool, duration float64)
	RecordFetch(kind string, status string)
	RecordVerification(role string, success bool)
	RecordAttemptIssued()
	RecordAttemptResolved(outcome string)
	RecordAttemptRejected(reason string)
	RecordSweep(expired, dropped int)
}

// PrometheusMetrics implements MetricsReporter using Prometheus
type PrometheusMetrics struct{}

// NewPrometheusMetrics creates a new Prometheus metrics reporter
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// RecordCacheHit records a document cache hit
func (m *PrometheusMetrics) RecordCacheHit(kind string) {
	documentCacheHitsCounter.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a document cache miss
func (m *PrometheusMetrics) RecordCacheMiss(kind string) {
	documentCacheMissesCounter.WithLabelValues(kind).Inc()
}

// RecordResolve records the outcome and duration of a resolution
func (m *PrometheusMetrics) RecordResolve(kind string, success bool, duration float64) {
	resolveCounter.WithLabelValues(kind, resultLabel(success)).Inc()
	resolveDuration.Observe(duration)
}

// RecordFetch records a document fetch by status
func (m *PrometheusMetrics) RecordFetch(kind string, status string) {
	fetchCounter.WithLabelValues(kind, status).Inc()
}

// RecordVerification records a trust verification result
func (m *PrometheusMetrics) RecordVerification(role string, success bool) {
	verificationCounter.WithLabelValues(role, resultLabel(success)).Inc()
}

// RecordAttemptIssued records an issued authentication challenge
func (m *PrometheusMetrics) RecordAttemptIssued() {
	attemptsIssuedCounter.Inc()
	pendingAttemptsGauge.Inc()
}

// RecordAttemptResolved records a pending attempt reaching a terminal state
func (m *PrometheusMetrics) RecordAttemptResolved(outcome string) {
	attemptOutcomeCounter.WithLabelValues(outcome).Inc()
	pendingAttemptsGauge.Dec()
}

// RecordAttemptRejected records a response that consumed no attempt
func (m *PrometheusMetrics) RecordAttemptRejected(reason string) {
	attemptOutcomeCounter.WithLabelValues(reason).Inc()
}

// RecordSweep records the work done by one sweeper pass
func (m *PrometheusMetrics) RecordSweep(expired, dropped int) {
	sweptAttemptsCounter.Add(float64(expired + dropped))
	pendingAttemptsGauge.Sub(float64(expired))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// NoOpMetrics implements MetricsReporter with no-op methods for when metrics are disabled
type NoOpMetrics struct{}

// RecordCacheHit no-op implementation
func (m *NoOpMetrics) RecordCacheHit(kind string) {}

// RecordCacheMiss no-op implementation
func (m *NoOpMetrics) RecordCacheMiss(kind string) {}

// RecordResolve no-op implementation
func (m *NoOpMetrics) RecordResolve(kind string, success bool, duration float64) {}

// RecordFetch no-op implementation
func (m *NoOpMetrics) RecordFetch(kind string, status string) {}

// RecordVerification no-op implementation
func (m *NoOpMetrics) RecordVerification(role string, success bool) {}

// RecordAttemptIssued no-op implementation
func (m *NoOpMetrics) RecordAttemptIssued() {}

// RecordAttemptResolved no-op implementation
func (m *NoOpMetrics) RecordAttemptResolved(outcome string) {}

// RecordAttemptRejected no-op implementation
func (m *NoOpMetrics) RecordAttemptRejected(reason string) {}

// RecordSweep no-op implementation
func (m *NoOpMetrics) RecordSweep(expired, dropped int) {}
