package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remindbot"

// Metrics exposes Prometheus collectors that report scheduler, delivery and
// command activity.
type Metrics struct {
	triggers      *prometheus.CounterVec
	lateness      prometheus.Histogram
	tasks         *prometheus.CounterVec
	taskDuration  prometheus.Histogram
	queueDelay    prometheus.Histogram
	deliveries    *prometheus.CounterVec
	commands      *prometheus.CounterVec
	droppedEvents prometheus.Counter
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered with an identical description are
// reused. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "triggers_total",
				Help:      "Trigger firings and misfire decisions by outcome.",
			},
			[]string{"outcome"},
		),
		lateness: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "trigger_lateness_seconds",
				Help:      "Delay between a trigger's scheduled time and its actual firing.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600},
			},
		),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "tasks_total",
				Help:      "Engine task lifecycle events by state.",
			},
			[]string{"state"},
		),
		taskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "task_duration_seconds",
				Help:      "Execution time of finished and failed engine tasks.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		queueDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "task_queue_delay_seconds",
				Help:      "Time a task spent queued before a worker picked it up.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sender",
				Name:      "delivery_problems_total",
				Help:      "Delivery retries and final failures by message kind.",
			},
			[]string{"kind", "result"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "commands_total",
				Help:      "Handled chat commands by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		droppedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_unrecognised_total",
				Help:      "Bus events with a known type but unexpected payload.",
			},
		),
	}

	m.triggers = register(reg, m.triggers)
	m.lateness = register(reg, m.lateness)
	m.tasks = register(reg, m.tasks)
	m.taskDuration = register(reg, m.taskDuration)
	m.queueDelay = register(reg, m.queueDelay)
	m.deliveries = register(reg, m.deliveries)
	m.commands = register(reg, m.commands)
	m.droppedEvents = register(reg, m.droppedEvents)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveTrigger records one trigger firing. outcome is "fired" or
// "misfired_<action>"; only on-time firings feed the lateness histogram.
func (m *Metrics) ObserveTrigger(outcome string, lateness time.Duration) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(outcome).Inc()
	if outcome == "fired" && lateness >= 0 {
		m.lateness.Observe(lateness.Seconds())
	}
}

// ObserveTask records an engine task state change.
func (m *Metrics) ObserveTask(state string, queueDelay, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(state).Inc()
	switch state {
	case "started":
		m.queueDelay.Observe(queueDelay.Seconds())
	case "finished", "failed":
		m.taskDuration.Observe(duration.Seconds())
	}
}

// IncDelivery counts a retry or a final failure for a message kind.
func (m *Metrics) IncDelivery(kind, result string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
}

// IncCommand counts a routed command.
func (m *Metrics) IncCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) incUnrecognised() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
