package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// proxyMetrics records orchestrator activity on a caller-owned
// registry. A nil provider is valid and records nothing, so metrics
// stay strictly opt-in.
type proxyMetrics struct {
	requests        *prometheus.CounterVec
	toolRounds      prometheus.Histogram
	upstreamSeconds prometheus.Histogram
	toolSeconds     prometheus.Histogram
}

func newProxyMetrics(registry *prometheus.Registry) *proxyMetrics {
	if registry == nil {
		return nil
	}

	m := &proxyMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmgate_requests_total",
				Help: "Total number of proxied requests by protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),
		toolRounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "llmgate_tool_rounds",
				Help:    "Number of tool rounds executed per request",
				Buckets: prometheus.LinearBuckets(0, 1, 8),
			},
		),
		upstreamSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "llmgate_upstream_duration_seconds",
				Help:    "Latency of upstream provider calls",
				Buckets: prometheus.DefBuckets,
			},
		),
		toolSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "llmgate_tool_invoke_duration_seconds",
				Help:    "Latency of tool invocations",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.requests,
		m.toolRounds,
		m.upstreamSeconds,
		m.toolSeconds,
	)

	return m
}

func (m *proxyMetrics) observeRequest(protocol llm.Protocol, outcome string) {
	if m != nil && m.requests != nil {
		m.requests.WithLabelValues(string(protocol), outcome).Inc()
	}
}

func (m *proxyMetrics) observeRounds(rounds int) {
	if m != nil && m.toolRounds != nil {
		m.toolRounds.Observe(float64(rounds))
	}
}

func (m *proxyMetrics) observeUpstream(elapsed time.Duration) {
	if m != nil && m.upstreamSeconds != nil {
		m.upstreamSeconds.Observe(elapsed.Seconds())
	}
}

func (m *proxyMetrics) observeTool(elapsed time.Duration) {
	if m != nil && m.toolSeconds != nil {
		m.toolSeconds.Observe(elapsed.Seconds())
	}
}
