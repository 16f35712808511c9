package metrics

import "github.com/prometheus/client_golang/prometheus"

// ToolMetrics exposes counters/histograms for the voice-agent tool endpoints.
type ToolMetrics struct {
	invocationsTotal *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	toolLatency      *prometheus.HistogramVec
	squareCallsTotal *prometheus.CounterVec
}

func NewToolMetrics(reg prometheus.Registerer) *ToolMetrics {
	m := &ToolMetrics{
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "tools",
			Name:      "invocations_total",
			Help:      "Total tool endpoint invocations",
		}, []string{"tool", "outcome"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "tools",
			Name:      "booking_conflicts_total",
			Help:      "Total booking mutations refused due to overlap conflicts",
		}, []string{"tool"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barbershop",
			Subsystem: "tools",
			Name:      "latency_seconds",
			Help:      "Latency of tool endpoint processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		squareCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "square",
			Name:      "api_calls_total",
			Help:      "Total upstream Square API calls",
		}, []string{"endpoint", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.invocationsTotal, m.conflictsTotal, m.toolLatency, m.squareCallsTotal)
	return m
}

func (m *ToolMetrics) ObserveInvocation(tool, outcome string) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *ToolMetrics) ObserveConflict(tool string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(tool).Inc()
}

func (m *ToolMetrics) ObserveLatency(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.toolLatency.WithLabelValues(tool).Observe(seconds)
}

func (m *ToolMetrics) ObserveSquareCall(endpoint, status string) {
	if m == nil {
		return
	}
	m.squareCallsTotal.WithLabelValues(endpoint, status).Inc()
}
