// Package metrics exposes scan orchestration metrics for Prometheus.
//
// All recording methods are safe on a nil *Metrics so callers can run
// without instrumentation.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authscan"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	scansStarted  prometheus.Counter
	scansFinished *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	phaseDuration *prometheus.HistogramVec
	pollErrors    *prometheus.CounterVec
	stuckScans    prometheus.Counter
	retries       prometheus.Counter
	engineCalls   *prometheus.CounterVec
	engineLatency *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.scansStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_started_total",
		Help:      "Scans accepted and launched",
	})
	m.scansFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_finished_total",
		Help:      "Scans that reached a terminal status",
	}, []string{"status"})
	m.activeRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_runs",
		Help:      "Scan sequencers currently running in this process",
	})
	m.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Time spent in each workflow phase",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"phase", "outcome"})
	m.pollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_errors_total",
		Help:      "Failed status polls by phase",
	}, []string{"phase"})
	m.stuckScans = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stuck_scans_total",
		Help:      "Active scans stopped because progress stalled",
	})
	m.retries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_retries_total",
		Help:      "Engine calls retried after a transient failure",
	})
	m.engineCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_calls_total",
		Help:      "Engine API calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	m.engineLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_call_duration_seconds",
		Help:      "Engine API call latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	for _, c := range []prometheus.Collector{
		m.scansStarted, m.scansFinished, m.activeRuns, m.phaseDuration,
		m.pollErrors, m.stuckScans, m.retries, m.engineCalls, m.engineLatency,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.scansStarted.Inc()
	m.activeRuns.Inc()
}

func (m *Metrics) ScanFinished(status string) {
	if m == nil {
		return
	}
	m.scansFinished.WithLabelValues(status).Inc()
	m.activeRuns.Dec()
}

func (m *Metrics) PhaseDone(phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, outcome).Observe(d.Seconds())
}

func (m *Metrics) PollError(phase string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(phase).Inc()
}

func (m *Metrics) StuckScan() {
	if m == nil {
		return
	}
	m.stuckScans.Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// EngineCall matches engine.Options.Observer.
func (m *Metrics) EngineCall(endpoint string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.engineCalls.WithLabelValues(endpoint, outcome).Inc()
	m.engineLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}
