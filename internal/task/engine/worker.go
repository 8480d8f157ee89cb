package engine

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// slowTask firings are logged at info level.
const slowTask = 750 * time.Millisecond

func (s *Service) work(ctx context.Context, p *pool) {
	for {
		// quit takes priority over queued work
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case qt := <-p.queue:
			s.inFlight.Add(1)
			s.exec(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) exec(ctx context.Context, qt queuedTask) {
	t := qt.task
	ev := TaskEvent{ID: t.ID, Name: t.Name, ReminderID: t.ReminderID, Started: time.Now()}
	ev.QueueDelay = max(ev.Started.Sub(qt.queuedAt), 0)
	log := s.log.With(logx.String("task", t.Name), logx.String("reminder", t.ReminderID))

	s.publish(eventbus.TaskStarted, ev)
	err := runTask(ctx, qt, log)
	ev.Duration = time.Since(ev.Started)

	fields := []logx.Field{logx.Duration("queue_delay", ev.QueueDelay), logx.Duration("dur", ev.Duration)}
	switch {
	case err != nil:
		ev.Error = err.Error()
		log.Warn("task failed", append(fields, logx.Err(err))...)
		s.publish(eventbus.TaskFailed, ev)
	case ev.Duration >= slowTask:
		log.Info("task finished", fields...)
		s.publish(eventbus.TaskFinished, ev)
	default:
		log.Debug("task finished", fields...)
		s.publish(eventbus.TaskFinished, ev)
	}
	s.remember(ev)
}

// runTask applies the timeout and turns a panic into an error so the worker
// survives it.
func runTask(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", logx.Any("panic", r), logx.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return qt.task.Run(ctx)
}
