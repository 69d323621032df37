// Package metrics holds the Prometheus collectors of each process. Every
// process owns its registry; collectors carry a constant service label.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glossary"

type collectorSet struct {
	registry *prometheus.Registry
	service  string
}

func newCollectorSet(service string) *collectorSet {
	return &collectorSet{registry: prometheus.NewRegistry(), service: service}
}

// Handler serves the registry in the Prometheus text format.
func (s *collectorSet) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *collectorSet) constLabels() prometheus.Labels {
	return prometheus.Labels{"service": s.service}
}

func (s *collectorSet) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: s.constLabels(),
	}, labels)
	s.registry.MustRegister(c)
	return c
}

func (s *collectorSet) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: s.constLabels(),
	}, labels)
	s.registry.MustRegister(h)
	return h
}

func (s *collectorSet) gauge(subsystem, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: s.constLabels(),
	})
	s.registry.MustRegister(g)
	return g
}
