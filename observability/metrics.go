// Package observability holds the Prometheus collectors and the slog logger setup.
package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/costwatch/costwatch-dashboard/dataset"
)

const namespace = "costwatch"

// Metrics owns a dedicated registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	thresholdWrites *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	viewsActive     prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_fetch_total",
			Help:      "Upstream dataset fetches by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_fetch_duration_seconds",
			Help:      "Histogram of upstream dataset fetch durations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dataset"}),
		thresholdWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_writes_total",
			Help:      "Upstream alert threshold writes by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		viewsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "views_active",
			Help:      "Number of live dashboard views.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchTotal,
		m.fetchDuration,
		m.thresholdWrites,
		m.httpRequests,
		m.httpDuration,
		m.viewsActive,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch records one dataset fetch. It matches dataset.Options.Observe.
func (m *Metrics) ObserveFetch(name dataset.Name, took time.Duration, err error) {
	m.fetchTotal.WithLabelValues(string(name), outcome(err)).Inc()
	m.fetchDuration.WithLabelValues(string(name)).Observe(took.Seconds())
}

// ObserveThresholdWrite records one upstream threshold write.
func (m *Metrics) ObserveThresholdWrite(err error) {
	m.thresholdWrites.WithLabelValues(outcome(err)).Inc()
}

// SetViews records the number of live views.
func (m *Metrics) SetViews(n int) {
	m.viewsActive.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is required by the websocket upgrade.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// WrapHandler records request count and latency under the label returned by route.
func (m *Metrics) WrapHandler(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		label := route(r)
		m.httpDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(label, strconv.Itoa(recorder.status)).Inc()
	})
}
