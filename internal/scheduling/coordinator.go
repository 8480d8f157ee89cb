package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"remindbot/internal/delivery"
	"remindbot/internal/planner"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

const (
	jobGroup           = "reminders"
	defaultConcurrency = 8
)

// ReminderSource is the part of the reminder store the coordinator reads.
type ReminderSource interface {
	GetReminder(ctx context.Context, id string) (storage.Reminder, error)
	ListReminders(ctx context.Context) ([]storage.Reminder, error)
}

// JobKey is the durable job every trigger of reminder id points at.
func JobKey(id string) scheduler.JobKey {
	return scheduler.JobKey{Name: "reminders.reminder:" + id, Group: jobGroup}
}

// Outcome reports what UpsertAndReschedule registered.
type Outcome struct {
	ReminderID string
	Scheduled  int
	Triggers   []planner.Trigger
	// Warnings are non-fatal planning problems (bad timezone, unparseable
	// fields); see planner.ConfigurationError and planner.ParseError.
	Warnings []error
}

// Dormant reports that nothing was scheduled: the reminder is in the past or
// has no usable schedule. It is not an error.
func (o Outcome) Dormant() bool { return o.Scheduled == 0 }

type RescheduleReport struct {
	Reminders int
	Scheduled int // triggers
	Dormant   int
	Removed   int // deleted from the store while the batch ran
	Failed    int
	Cleared   int // namespace triggers removed up front
	Took      time.Duration
}

type Coordinator struct {
	port        scheduler.Port
	store       ReminderSource
	log         logx.Logger
	locks       *keyedMutex
	now         func() time.Time
	concurrency int
}

type Option func(*Coordinator)

// WithConcurrency bounds RescheduleAll's parallelism.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func New(port scheduler.Port, store ReminderSource, log logx.Logger, opts ...Option) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Coordinator{
		port:        port,
		store:       store,
		log:         log,
		locks:       newKeyedMutex(),
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpsertAndReschedule replaces every trigger of r with a fresh plan. tag is
// copied into the job-data; a tag containing "poll" enables the event poll.
func (c *Coordinator) UpsertAndReschedule(ctx context.Context, r storage.Reminder, fallbackTZ, tag string) (Outcome, error) {
	if r.ID == "" {
		return Outcome{}, fmt.Errorf("%w: reminder id is empty", storage.ErrInvalid)
	}
	unlock, err := c.locks.Lock(ctx, r.ID)
	if err != nil {
		return Outcome{ReminderID: r.ID}, err
	}
	defer unlock()
	return c.upsertLocked(ctx, r, fallbackTZ, tag)
}

func (c *Coordinator) upsertLocked(ctx context.Context, r storage.Reminder, fallbackTZ, tag string) (Outcome, error) {
	out := Outcome{ReminderID: r.ID}
	log := c.log.With(logx.String("reminder", r.ID))

	if _, err := c.unscheduleLocked(ctx, r.ID); err != nil {
		return out, err
	}

	jk := JobKey(r.ID)
	exists, err := c.port.CheckExists(ctx, jk)
	if err != nil {
		return out, storeErr("check job", r.ID, err)
	}
	if !exists {
		if err := c.port.AddJob(ctx, scheduler.JobDetail{Key: jk, Type: delivery.JobType, Durable: true}, true); err != nil {
			return out, storeErr("add job", r.ID, err)
		}
	}

	res := planner.PlanTagged(r, fallbackTZ, c.now(), tag)
	out.Warnings = res.Warnings
	for _, w := range res.Warnings {
		log.Warn("reminder planning issue", logx.Err(w))
	}

	for _, t := range res.Triggers {
		trig := scheduler.Trigger{
			Key:        scheduler.TriggerKey{Name: t.Name(), Group: t.Kind.Group()},
			Job:        jk,
			ReminderID: r.ID,
			Kind:       string(t.Kind),
			TimeZone:   t.TimeZone,
			Data:       delivery.Encode(delivery.FromPlan(r, t, tag)),
		}
		if t.Kind == planner.KindCron {
			trig.Cron = t.Cron
		} else {
			trig.FireAt = t.FireAt
		}
		if err := c.port.ScheduleJob(ctx, trig); err != nil {
			return out, storeErr("schedule "+trig.Key.Name, r.ID, err)
		}
		out.Triggers = append(out.Triggers, t)
		out.Scheduled++
	}

	if out.Dormant() {
		log.Info("no triggers; reminder is dormant")
	} else {
		log.Info("triggers scheduled", logx.Int("count", out.Scheduled))
	}
	return out, nil
}

// unscheduleLocked removes every trigger indexed under id.
func (c *Coordinator) unscheduleLocked(ctx context.Context, id string) (int, error) {
	keys, err := c.port.GetTriggerKeys(ctx, scheduler.ReminderEquals(id))
	if err != nil {
		return 0, storeErr("list triggers", id, err)
	}
	n := 0
	for _, k := range keys {
		ok, err := c.port.UnscheduleJob(ctx, k)
		if err != nil {
			return n, storeErr("unschedule "+k.Name, id, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// DeleteAndUnschedule removes the reminder's triggers and job definition.
// Unknown and blank ids are a no-op.
func (c *Coordinator) DeleteAndUnschedule(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	unlock, err := c.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	n, err := c.unscheduleLocked(ctx, id)
	if err != nil {
		return err
	}
	if _, err := c.port.DeleteJob(ctx, JobKey(id)); err != nil {
		return storeErr("delete job", id, err)
	}
	c.log.Debug("reminder unscheduled", logx.String("reminder", id), logx.Int("triggers", n))
	return nil
}

// RescheduleAll rebuilds every reminder trigger from the store, e.g. on cold
// start. Failures of single reminders are counted and logged; only failures
// to clear the namespace or list the store abort the run.
func (c *Coordinator) RescheduleAll(ctx context.Context, fallbackTZ string) (RescheduleReport, error) {
	start := time.Now()
	var rep RescheduleReport

	keys, err := c.port.GetTriggerKeys(ctx, scheduler.GroupStartsWith(planner.Namespace))
	if err != nil {
		return rep, storeErr("list triggers", "*", err)
	}
	for _, k := range keys {
		if _, err := c.port.UnscheduleJob(ctx, k); err != nil {
			return rep, storeErr("unschedule "+k.Name, "*", err)
		}
		rep.Cleared++
	}

	reminders, err := c.store.ListReminders(ctx)
	if err != nil {
		return rep, fmt.Errorf("list reminders: %w", err)
	}
	rep.Reminders = len(reminders)

	var scheduled, dormant, removed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, r := range reminders {
		id := r.ID
		g.Go(func() error {
			unlock, err := c.locks.Lock(ctx, id)
			if err != nil {
				failed.Add(1)
				return nil
			}
			defer unlock()

			// Re-read under the lock: the batch listing may be stale.
			cur, err := c.store.GetReminder(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				removed.Add(1)
				return nil
			}
			if err != nil {
				failed.Add(1)
				c.log.Error("reschedule: load reminder failed", logx.String("reminder", id), logx.Err(err))
				return nil
			}

			out, err := c.upsertLocked(ctx, cur, fallbackTZ, "")
			if err != nil {
				failed.Add(1)
				c.log.Error("reschedule failed", logx.String("reminder", id), logx.Err(err))
				return nil
			}
			scheduled.Add(int64(out.Scheduled))
			if out.Dormant() {
				dormant.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.Scheduled = int(scheduled.Load())
	rep.Dormant = int(dormant.Load())
	rep.Removed = int(removed.Load())
	rep.Failed = int(failed.Load())
	rep.Took = time.Since(start)

	c.log.Info("reschedule complete",
		logx.Int("reminders", rep.Reminders),
		logx.Int("triggers", rep.Scheduled),
		logx.Int("dormant", rep.Dormant),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took),
	)
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}
