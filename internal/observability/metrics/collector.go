package metrics

import (
	"context"

	"remindbot/internal/eventbus"
	"remindbot/internal/sender"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport/telegram/router"
)

// Consume drains bus events into m until ctx is done.
func Consume(ctx context.Context, bus eventbus.Bus, m *Metrics) {
	ch, unsub := bus.Subscribe(512,
		eventbus.TriggerFired, eventbus.TriggerMisfired,
		eventbus.TaskStarted, eventbus.TaskFinished, eventbus.TaskFailed, eventbus.TaskDropped,
		eventbus.DeliveryRetry, eventbus.DeliveryFailed,
		eventbus.CommandHandled,
	)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Record(ev)
		}
	}
}

// Record maps a single bus event onto the collectors. Unknown event types are
// ignored.
func (m *Metrics) Record(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TriggerFired, eventbus.TriggerMisfired:
		te, ok := ev.Data.(scheduler.TriggerEvent)
		if !ok {
			m.incUnrecognised()
			return
		}
		outcome := "fired"
		if ev.Type == eventbus.TriggerMisfired {
			outcome = "misfired_" + te.Action
		}
		m.ObserveTrigger(outcome, te.Lateness)
	case eventbus.TaskStarted, eventbus.TaskFinished, eventbus.TaskFailed, eventbus.TaskDropped:
		te, ok := ev.Data.(engine.TaskEvent)
		if !ok {
			m.incUnrecognised()
			return
		}
		m.ObserveTask(ev.Type[len("task."):], te.QueueDelay, te.Duration)
	case eventbus.DeliveryRetry, eventbus.DeliveryFailed:
		de, ok := ev.Data.(sender.DeliveryEvent)
		if !ok {
			m.incUnrecognised()
			return
		}
		m.IncDelivery(de.Kind, ev.Type[len("delivery."):])
	case eventbus.CommandHandled:
		ce, ok := ev.Data.(router.CommandEvent)
		if !ok {
			m.incUnrecognised()
			return
		}
		m.IncCommand(ce.Command, ce.Outcome)
	}
}

