// Package metrics exposes Prometheus instrumentation for the service.
// A nil *Collector is valid and records nothing, which keeps call sites
// free of nil checks in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all service metrics.
type Collector struct {
	questionsTotal    *prometheus.CounterVec
	oracleCallsTotal  *prometheus.CounterVec
	gradeFallbacks    prometheus.Counter
	retrievalDuration prometheus.Histogram
	indexDocuments    prometheus.Gauge
	indexChunks       prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewCollector creates and registers all metrics on the given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		questionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "questions_total",
			Help:      "Questions answered, by route.",
		}, []string{"route"}),
		oracleCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "oracle_calls_total",
			Help:      "LLM oracle invocations, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		gradeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "grade_fallbacks_total",
			Help:      "Relevance grades that fell back to the fused retrieval score.",
		}),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Name:      "retrieval_duration_seconds",
			Help:      "Hybrid index query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		indexDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paperqa",
			Name:      "index_documents",
			Help:      "Documents in the current index snapshot.",
		}),
		indexChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paperqa",
			Name:      "index_chunks",
			Help:      "Chunks in the current index snapshot.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.questionsTotal,
		c.oracleCallsTotal,
		c.gradeFallbacks,
		c.retrievalDuration,
		c.indexDocuments,
		c.indexChunks,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// ObserveQuestion counts an answered question by route.
func (c *Collector) ObserveQuestion(route string) {
	if c == nil {
		return
	}
	c.questionsTotal.WithLabelValues(route).Inc()
}

// ObserveOracle counts an oracle invocation by backend and outcome.
func (c *Collector) ObserveOracle(backend, outcome string) {
	if c == nil {
		return
	}
	c.oracleCallsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveGradeFallback counts a grade that fell back to the fused score.
func (c *Collector) ObserveGradeFallback() {
	if c == nil {
		return
	}
	c.gradeFallbacks.Inc()
}

// ObserveRetrieval records one hybrid index query duration.
func (c *Collector) ObserveRetrieval(d time.Duration) {
	if c == nil {
		return
	}
	c.retrievalDuration.Observe(d.Seconds())
}

// SetIndexSize records the current index snapshot size.
func (c *Collector) SetIndexSize(docs, chunks int) {
	if c == nil {
		return
	}
	c.indexDocuments.Set(float64(docs))
	c.indexChunks.Set(float64(chunks))
}

// ObserveHTTP records one HTTP request.
func (c *Collector) ObserveHTTP(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
