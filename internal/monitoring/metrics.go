package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the simulator's Prometheus collectors. Each Metrics owns a
// private registry so tests can build as many as they like without
// duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	DeviceSamples   *prometheus.CounterVec
	DeviceErrors    *prometheus.CounterVec
	DevicesEnabled  prometheus.Gauge
	RobotCollisions *prometheus.CounterVec
	RobotTick       prometheus.Histogram
}

// NewMetrics creates and registers the simulator metrics along with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DeviceSamples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "robosim",
				Subsystem: "device",
				Name:      "samples_total",
				Help:      "Samples written to a device history buffer",
			},
			[]string{"device"},
		),
		DeviceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "robosim",
				Subsystem: "device",
				Name:      "errors_total",
				Help:      "Sampling ticks that produced no value",
			},
			[]string{"device", "kind"},
		),
		DevicesEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "robosim",
				Subsystem: "device",
				Name:      "enabled",
				Help:      "Number of devices currently sampling",
			},
		),
		RobotCollisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "robosim",
				Subsystem: "robot",
				Name:      "collisions_total",
				Help:      "Rejected pose transitions",
			},
			[]string{"reason"},
		),
		RobotTick: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "robosim",
				Subsystem: "robot",
				Name:      "tick_seconds",
				Help:      "Measured wall-clock interval between motion ticks",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
	}

	m.registry.MustRegister(
		m.DeviceSamples,
		m.DeviceErrors,
		m.DevicesEnabled,
		m.RobotCollisions,
		m.RobotTick,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
