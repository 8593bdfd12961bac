// Package metrics exposes Prometheus collectors for the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters and histograms recorded per chat turn.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	llmCalls      *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	routes        *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	lookupResults prometheus.Histogram
	streams       *prometheus.CounterVec
	fragments     prometheus.Counter
	rateLimited   prometheus.Counter
}

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "networku",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM provider calls by kind and outcome",
		}, []string{"kind", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "networku",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of LLM provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "networku",
			Subsystem: "chat",
			Name:      "routes_total",
			Help:      "Chat turns by routing branch",
		}, []string{"branch"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "networku",
			Subsystem: "contacts",
			Name:      "lookups_total",
			Help:      "Contacts directory lookups by outcome",
		}, []string{"status"}),
		lookupResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "networku",
			Subsystem: "contacts",
			Name:      "results",
			Help:      "Contacts forwarded to the prompt per lookup",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "networku",
			Subsystem: "relay",
			Name:      "streams_total",
			Help:      "Relayed streams by terminal outcome",
		}, []string{"outcome"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "networku",
			Subsystem: "relay",
			Name:      "fragments_total",
			Help:      "Text fragments written to clients",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "networku",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.llmCalls, m.llmLatency, m.routes, m.lookups, m.lookupResults, m.streams, m.fragments, m.rateLimited)
	return m
}

// ObserveLLMCall records one provider call.
func (m *Metrics) ObserveLLMCall(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(kind, status).Inc()
	m.llmLatency.WithLabelValues(kind).Observe(seconds)
}

// ObserveRoute records the branch a turn was routed to.
func (m *Metrics) ObserveRoute(branch string) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(branch).Inc()
}

// ObserveLookup records a contacts lookup and how many contacts it produced.
func (m *Metrics) ObserveLookup(status string, results int) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(status).Inc()
	if status == "ok" {
		m.lookupResults.Observe(float64(results))
	}
}

// ObserveStreamClosed records how a relayed stream ended.
func (m *Metrics) ObserveStreamClosed(outcome string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(outcome).Inc()
}

// ObserveFragment counts one fragment delivered to a client.
func (m *Metrics) ObserveFragment() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

// ObserveRateLimited counts a rejected request.
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// StreamsClosed returns the stream counter for outcome; used by tests.
func (m *Metrics) StreamsClosed(outcome string) prometheus.Counter {
	return m.streams.WithLabelValues(outcome)
}

// RateLimited returns the rate-limit counter; used by tests.
func (m *Metrics) RateLimited() prometheus.Counter {
	return m.rateLimited
}
