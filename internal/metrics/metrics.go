// Package metrics exposes Prometheus counters and gauges for the fleet's
// runtime behavior. None of this changes externally observable wire
// behavior — it exists purely so the harness is debuggable under
// concurrent load without having to instrument the client under test.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels the result of one accepted connection, for
// tlstester_connections_total.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeHandshakeOK     Outcome = "handshake_ok"
	OutcomeHandshakeFailed Outcome = "handshake_failed"
	OutcomeFramingError    Outcome = "framing_error"
	OutcomeCompleted       Outcome = "completed"
)

// Metrics owns a private Prometheus registry so repeated construction
// (e.g. one per test) never collides with the global default registry.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal *prometheus.CounterVec
	BoundPort        *prometheus.GaugeVec
	ArtifactsTotal   prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered against a
// fresh, private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tlstester_connections_total",
				Help: "Total connections observed per endpoint, by outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		BoundPort: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tlstester_bound_port",
				Help: "TCP port each declared endpoint is bound to.",
			},
			[]string{"endpoint"},
		),
		ArtifactsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tlstester_artifacts_total",
				Help: "Total number of PKI artifacts published by the generator.",
			},
		),
	}

	m.Registry.MustRegister(m.ConnectionsTotal, m.BoundPort, m.ArtifactsTotal)
	return m
}

// RecordConnection increments the connection counter for endpoint/outcome.
func (m *Metrics) RecordConnection(endpoint string, outcome Outcome) {
	m.ConnectionsTotal.WithLabelValues(endpoint, string(outcome)).Inc()
}

// SetBoundPort records the port an endpoint was bound to.
func (m *Metrics) SetBoundPort(endpoint string, port int) {
	m.BoundPort.WithLabelValues(endpoint).Set(float64(port))
}

// SetArtifactsTotal records how many artifacts the generator published.
func (m *Metrics) SetArtifactsTotal(n int) {
	m.ArtifactsTotal.Set(float64(n))
}
