// Package metrics holds the supervisor's Prometheus collectors. They live on
// a private registry so tests and multiple supervisors never collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Proxy outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
)

// Metrics is the set of collectors the supervisor updates.
type Metrics struct {
	registry *prometheus.Registry

	Rebuilds      prometheus.Counter
	CycleState    *prometheus.GaugeVec
	BuildDuration *prometheus.HistogramVec
	GateWait      prometheus.Histogram
	ProxyRequests *prometheus.CounterVec
	WatchedPaths  prometheus.Gauge
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sunfish_rebuilds_total",
			Help: "Child processes spawned, one per cycle",
		}),
		CycleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sunfish_cycle_state",
			Help: "1 for the current cycle state, 0 otherwise",
		}, []string{"state"}),
		BuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sunfish_build_duration_seconds",
			Help:    "Time from spawning a child until it was considered ready",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"reason"}),
		GateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sunfish_gate_wait_seconds",
			Help:    "Time requests spent held while a build was in progress",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunfish_proxy_requests_total",
			Help: "Requests forwarded to the child, by outcome",
		}, []string{"outcome"}),
		WatchedPaths: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sunfish_watched_paths",
			Help: "Paths registered with the filesystem notifier",
		}),
	}

	m.registry.MustRegister(
		m.Rebuilds,
		m.CycleState,
		m.BuildDuration,
		m.GateWait,
		m.ProxyRequests,
		m.WatchedPaths,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SetState marks state as the current cycle state among all.
func (m *Metrics) SetState(state string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.CycleState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
