// Package statussink provides composable engine.StatusSink implementations:
// Prometheus metrics, OpenTelemetry spans, and a sqlite-backed transition
// history.
package statussink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

// MetricsConfig configures the Prometheus sink: a namespace plus an
// enabled switch so a disabled sink costs nothing beyond a nil check
// per event.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// MetricsSink reports every transition and fleet-health change as
// Prometheus series: a state gauge per component (1 for the current
// state, 0 for every other state it has ever held) and a transition
// counter keyed by component/from/to.
type MetricsSink struct {
	config MetricsConfig

	componentState *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	overall        prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetricsSink builds a MetricsSink. A disabled config returns a sink
// whose methods are no-ops.
func NewMetricsSink(cfg MetricsConfig) *MetricsSink {
	if !cfg.Enabled {
		return &MetricsSink{config: cfg}
	}

	registry := prometheus.NewRegistry()
	m := &MetricsSink{
		config:   cfg,
		registry: registry,
		componentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "component_state",
				Help:      "Current lifecycle state of a component (1=current, 0=not current).",
			},
			[]string{"component", "state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "component_transitions_total",
				Help:      "Total number of lifecycle transitions by component and target state.",
			},
			[]string{"component", "from", "to"},
		),
		overall: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "fleet_healthy",
				Help:      "Fleet-wide health (1=Healthy, 0=Unhealthy).",
			},
		),
	}

	registry.MustRegister(m.componentState, m.transitions, m.overall)
	return m
}

// Registry exposes the underlying *prometheus.Registry so cmd/orchestrator
// can mount it behind promhttp.HandlerFor.
func (m *MetricsSink) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsSink) OnTransition(componentName string, from, to engine.State, reason string) {
	if m.transitions == nil {
		return
	}
	m.componentState.WithLabelValues(componentName, string(from)).Set(0)
	m.componentState.WithLabelValues(componentName, string(to)).Set(1)
	m.transitions.WithLabelValues(componentName, string(from), string(to)).Inc()
}

func (m *MetricsSink) OnOverallChange(overall engine.Overall) {
	if m.overall == nil {
		return
	}
	value := 0.0
	if overall == engine.OverallHealthy {
		value = 1.0
	}
	m.overall.Set(value)
}
