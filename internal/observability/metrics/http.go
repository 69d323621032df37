package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPServerMetrics covers the glossary API: request traffic, traffic-control
// rejections and grounded answer outcomes.
type HTTPServerMetrics struct {
	*collectorSet

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestInFlight  prometheus.Gauge
	rateLimitedTotal *prometheus.CounterVec

	ragRequestsTotal     *prometheus.CounterVec
	ragRetrievalHitTotal *prometheus.CounterVec
	ragNoContextTotal    *prometheus.CounterVec
	ragContextChunks     *prometheus.HistogramVec
	ragDuration          *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	set := newCollectorSet(service)
	return &HTTPServerMetrics{
		collectorSet: set,

		requestTotal:     set.counter("http", "requests_total", "Total HTTP requests processed.", "method", "path", "status"),
		requestDuration:  set.histogram("http", "request_duration_seconds", "HTTP request duration in seconds.", nil, "method", "path"),
		requestInFlight:  set.gauge("http", "in_flight_requests", "Number of in-flight HTTP requests."),
		rateLimitedTotal: set.counter("http", "rate_limited_total", "Total HTTP requests rejected by traffic control.", "reason"),

		ragRequestsTotal:     set.counter("rag", "requests_total", "Total successful RAG answer requests.", "endpoint"),
		ragRetrievalHitTotal: set.counter("rag", "retrieval_hit_total", "Total RAG answers citing at least one chunk.", "endpoint"),
		ragNoContextTotal:    set.counter("rag", "no_context_total", "Total RAG answers produced without context.", "endpoint"),
		ragContextChunks: set.histogram("rag", "context_chunks", "Cited context chunks per successful RAG answer.",
			[]float64{0, 1, 2, 3, 5, 8, 13, 21}, "endpoint"),
		ragDuration: set.histogram("rag", "duration_seconds", "RAG answer duration in seconds.", nil, "endpoint"),
	}
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps dataset ids out of label values.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/glossaries/")
	if !ok || rest == "" {
		return path
	}
	_, action, found := strings.Cut(rest, "/")
	if !found {
		return "/glossaries/{dataset_id}"
	}
	return "/glossaries/{dataset_id}/" + action
}

func (m *HTTPServerMetrics) RecordRAGObservation(endpoint string, citedChunks int, duration time.Duration) {
	m.ragRequestsTotal.WithLabelValues(endpoint).Inc()
	m.ragContextChunks.WithLabelValues(endpoint).Observe(float64(citedChunks))
	m.ragDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

	if citedChunks > 0 {
		m.ragRetrievalHitTotal.WithLabelValues(endpoint).Inc()
		return
	}
	m.ragNoContextTotal.WithLabelValues(endpoint).Inc()
}

// RecordRejected counts requests turned away by rate limiting or backpressure.
func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rateLimitedTotal.WithLabelValues(reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
