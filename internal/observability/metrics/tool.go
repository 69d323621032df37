package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

// ToolMetrics implements ports.ToolMetrics for the MCP tool server.
type ToolMetrics struct {
	*collectorSet

	invocationsTotal *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
}

func NewToolMetrics(service string) *ToolMetrics {
	set := newCollectorSet(service)
	return &ToolMetrics{
		collectorSet:     set,
		invocationsTotal: set.counter("tool", "invocations_total", "Total tool invocations by status.", "tool", "status"),
		duration:         set.histogram("tool", "duration_seconds", "Tool invocation duration in seconds.", nil, "tool"),
		rateLimitedTotal: set.counter("tool", "rate_limited_total", "Total tool invocations rejected by the rate limiter.", "tool"),
	}
}

func (m *ToolMetrics) ObserveToolInvocation(tool string, status domain.InvocationStatus, duration time.Duration) {
	m.invocationsTotal.WithLabelValues(tool, string(status)).Inc()
	m.duration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (m *ToolMetrics) ObserveToolRateLimited(tool string) {
	m.rateLimitedTotal.WithLabelValues(tool).Inc()
}
