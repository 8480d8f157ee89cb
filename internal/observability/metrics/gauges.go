package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/engine"
)

// RegisterBusStats exports the bus publish and drop counters.
func RegisterBusStats(reg prometheus.Registerer, bus eventbus.Bus) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	register(reg, prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Events published on the in-process bus.",
	}, func() float64 { return float64(bus.Stats().Published) }))
	register(reg, prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Event deliveries skipped because a subscriber buffer was full.",
	}, func() float64 { return float64(bus.Stats().Dropped) }))
}

// RegisterEngineStats exports the engine queue depth and busy workers,
// sampled at scrape time.
func RegisterEngineStats(reg prometheus.Registerer, eng *engine.Service) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "queue_length",
		Help:      "Firings waiting for a worker.",
	}, func() float64 { return float64(eng.Stats().Queued) }))
	register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "tasks_in_flight",
		Help:      "Firings currently executing.",
	}, func() float64 { return float64(eng.Stats().InFlight) }))
}
