// Package metrics exposes Prometheus collectors for refresh cycles and remote requests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloudwave"

// Metrics holds the collectors of one process. Each instance owns its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	requests       *prometheus.CounterVec
	soundwaveBytes prometheus.Counter
	gateEnabled    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by final state.",
		}, []string{"state"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote requests by type and final state.",
		}, []string{"type", "state"}),
		soundwaveBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soundwave_bytes_total",
			Help:      "Bytes of soundwave images downloaded.",
		}),
		gateEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_enabled",
			Help:      "1 while the refresh waits for connectivity.",
		}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.requests,
		m.soundwaveBytes,
		m.gateEnabled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CycleFinished counts a refresh cycle ending in state.
func (m *Metrics) CycleFinished(state string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(state).Inc()
}

// RequestFinished counts a remote request of typ ending in state.
func (m *Metrics) RequestFinished(typ, state string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(typ, state).Inc()
}

// SoundwaveDownloaded adds n downloaded bytes.
func (m *Metrics) SoundwaveDownloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.soundwaveBytes.Add(float64(n))
}

// SetGateEnabled records the connectivity gate flag.
func (m *Metrics) SetGateEnabled(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.gateEnabled.Set(1)
	} else {
		m.gateEnabled.Set(0)
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
