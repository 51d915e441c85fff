// Package telemetry exposes Prometheus metrics for the page pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcomes
const (
	OutcomeCacheHit     = "cache_hit"
	OutcomeOCR          = "ocr"
	OutcomeTextOnly     = "text_only"
	OutcomeTextFallback = "text_fallback"
	OutcomeFailed       = "failed"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	pages         *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	toolFailures  *prometheus.CounterVec
	modelDuration prometheus.Histogram
	uploads       prometheus.Counter
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caia_ocr",
			Name:      "pages_total",
			Help:      "Pages processed by outcome.",
		}, []string{"outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caia_ocr",
			Name:      "tool_duration_seconds",
			Help:      "External tool invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"tool"}),
		toolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caia_ocr",
			Name:      "tool_failures_total",
			Help:      "External tool invocations that failed.",
		}, []string{"tool"}),
		modelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "caia_ocr",
			Name:      "model_duration_seconds",
			Help:      "OCR model call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caia_ocr",
			Name:      "uploads_total",
			Help:      "Accepted uploads.",
		}),
	}
	m.registry.MustRegister(m.pages, m.toolDuration, m.toolFailures, m.modelDuration, m.uploads)
	return m
}

// Page counts one page outcome
func (m *Metrics) Page(outcome string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(outcome).Inc()
}

// Tool records one tool invocation
func (m *Metrics) Tool(tool string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.toolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	if err != nil {
		m.toolFailures.WithLabelValues(tool).Inc()
	}
}

// Model records one model call
func (m *Metrics) Model(start time.Time) {
	if m == nil {
		return
	}
	m.modelDuration.Observe(time.Since(start).Seconds())
}

// Upload counts one accepted upload
func (m *Metrics) Upload() {
	if m == nil {
		return
	}
	m.uploads.Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
