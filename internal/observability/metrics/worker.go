package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type WorkerMetrics struct {
	*collectorSet

	parseTotal    *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	parseInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	set := newCollectorSet(service)
	return &WorkerMetrics{
		collectorSet:  set,
		parseTotal:    set.counter("worker", "parse_jobs_total", "Total parse jobs handled by status.", "status"),
		parseDuration: set.histogram("worker", "parse_duration_seconds", "Parse trigger duration in seconds by status.", nil, "status"),
		parseInFlight: set.gauge("worker", "parse_in_flight", "Number of in-flight parse jobs."),
	}
}

func (m *WorkerMetrics) StartParseJob() {
	m.parseInFlight.Inc()
}

func (m *WorkerMetrics) FinishParseJob(duration time.Duration, err error) {
	m.parseInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.parseTotal.WithLabelValues(status).Inc()
	m.parseDuration.WithLabelValues(status).Observe(duration.Seconds())
}
