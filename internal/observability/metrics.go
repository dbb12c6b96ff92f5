// Package observability exports simloom's Prometheus metrics and the HTTP
// middleware that records inspection traffic.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simloom"

// Metrics holds every collector on a private registry, so several loops in
// one process (or one test binary) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	ticks             *prometheus.CounterVec
	tickDuration      *prometheus.HistogramVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	synthesis         *prometheus.CounterVec
	synthesisDuration *prometheus.HistogramVec
	repairs           *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "ticks_total",
				Help:      "System ticks executed, by outcome.",
			},
			[]string{"system", "outcome"},
		),
		tickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "tick_duration_seconds",
				Help:      "Wall time of one system tick in seconds.",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
			},
			[]string{"system"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "requests_total",
				Help:      "Requests handled by the cognitive loop.",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		synthesis: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "synthesis",
				Name:      "calls_total",
				Help:      "Synthesis gateway calls.",
			},
			[]string{"outcome"},
		),
		synthesisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "synthesis",
				Name:      "call_duration_seconds",
				Help:      "Synthesis call duration in seconds.",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		repairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "repairs_total",
				Help:      "Repair attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total inspection HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Inspection HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	m.registry.MustRegister(
		m.ticks, m.tickDuration,
		m.requests, m.requestDuration,
		m.synthesis, m.synthesisDuration,
		m.repairs,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTick records one system tick.
func (m *Metrics) ObserveTick(system, outcome string, d time.Duration) {
	m.ticks.WithLabelValues(system, outcome).Inc()
	m.tickDuration.WithLabelValues(system).Observe(d.Seconds())
}

// ObserveRequest records one handled loop request.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveSynthesis records one synthesis call.
func (m *Metrics) ObserveSynthesis(outcome string, d time.Duration) {
	m.synthesis.WithLabelValues(outcome).Inc()
	m.synthesisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRepair records one repair attempt.
func (m *Metrics) ObserveRepair(outcome string) {
	m.repairs.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one inspection request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	label := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, label).Inc()
	m.httpDuration.WithLabelValues(method, route, label).Observe(d.Seconds())
}
