package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/jobstore"
	logx "remindbot/pkg/logx"
)

// armLocked registers rec with the runtime. Call with s.mu held.
func (s *Service) armLocked(rec jobstore.Trigger, jobType string) error {
	key := TriggerKey(rec.Key())
	s.disarmLocked(key)

	s.ver++
	a := &armedTrigger{ver: s.ver, rec: rec, jobType: jobType}
	ver := a.ver

	if rec.FireAt != nil {
		delay := max(rec.FireAt.Sub(s.now()), 0)
		a.timer = time.AfterFunc(delay, func() { s.fireOnce(key, ver) })
		s.armed[key] = a
		return nil
	}

	tz := rec.TimeZone
	if tz == "" && s.loc != nil {
		tz = s.loc.String()
	}
	id, err := s.c.AddJob(CronSpec(rec.Cron, tz), cron.FuncJob(func() { s.fireCron(key, ver) }))
	if err != nil {
		return err
	}
	a.entry = id
	s.armed[key] = a
	return nil
}

// disarmLocked stops the runtime side of key. Call with s.mu held.
func (s *Service) disarmLocked(key TriggerKey) {
	a, ok := s.armed[key]
	if !ok {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.entry != 0 && s.c != nil {
		s.c.Remove(a.entry)
	}
	delete(s.armed, key)
}

func (s *Service) fireOnce(key TriggerKey, ver uint64) {
	s.mu.Lock()
	a, ok := s.armed[key]
	if !ok || a.ver != ver {
		// Replaced or removed since arming.
		s.mu.Unlock()
		return
	}
	delete(s.armed, key)
	run := s.run
	s.mu.Unlock()

	scheduled := *a.rec.FireAt
	if err := s.dispatch(run, a, scheduled, s.now().Sub(scheduled) > time.Second); err != nil {
		// The row stays; the next Start picks it up as a misfire.
		s.log.Warn("trigger not enqueued; kept for restart", logx.String("trigger", key.String()), logx.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Only the row that fired; a trigger rescheduled under the same key meanwhile keeps its own.
	if _, err := s.store.DeleteTriggerRevision(ctx, jobstore.Key(key), a.rec.Revision); err != nil {
		s.log.Warn("fired trigger cleanup failed", logx.String("trigger", key.String()), logx.Err(err))
	}
}

func (s *Service) fireCron(key TriggerKey, ver uint64) {
	s.mu.Lock()
	a, ok := s.armed[key]
	if !ok || a.ver != ver {
		s.mu.Unlock()
		return
	}
	run := s.run
	s.mu.Unlock()
	if err := s.dispatch(run, a, s.now().Truncate(time.Second), false); err != nil {
		s.log.Warn("cron occurrence skipped", logx.String("trigger", key.String()), logx.Err(err))
	}
}

// dispatch hands the firing to the engine, waiting for queue space until run
// ends. A nil error means the firing is queued or can never run.
func (s *Service) dispatch(run context.Context, a *armedTrigger, scheduled time.Time, misfired bool) error {
	now := s.now()
	key := TriggerKey(a.rec.Key())

	s.mu.Lock()
	h := s.handlers[a.jobType]
	timeout := s.cfg.TaskTimeout
	s.mu.Unlock()

	s.publishTrigger(eventbus.TriggerFired, a.rec, max(now.Sub(scheduled), 0), "")
	if h == nil {
		s.log.Error("no handler for job type", logx.String("type", a.jobType), logx.String("trigger", key.String()))
		return nil
	}
	if s.engine == nil {
		return nil
	}
	if run == nil {
		return engine.ErrStopped
	}

	f := Firing{
		Trigger:     key,
		Job:         JobKey(a.rec.JobKey()),
		ReminderID:  a.rec.ReminderID,
		ScheduledAt: scheduled,
		FiredAt:     now,
		Misfired:    misfired,
		Data:        a.rec.DataMap(),
	}
	return s.engine.EnqueueWait(run, engine.Task{
		Name:       "trigger:" + a.rec.Name,
		ReminderID: f.ReminderID,
		Timeout:    timeout,
		Run:        func(ctx context.Context) error { return h(ctx, f) },
	})
}
