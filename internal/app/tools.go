package app

import (
	"context"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/planner"
	"remindbot/internal/scheduling"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Tools opens the stores without Telegram so maintenance commands can run
// while the bot is stopped.
type Tools struct {
	Log logx.Logger

	logs *logx.Service
	*core
}

func OpenTools(cfgPath string) (*Tools, error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	lc := logConfig(cfg)
	lc.Telegram.Enabled = false
	logs, root := logx.New(lc, nil)

	c, err := openCore(cfg, root, nil)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	return &Tools{Log: root, logs: logs, core: c}, nil
}

func (t *Tools) Close() error {
	err := t.core.close()
	_ = t.logs.Close()
	return err
}

// DefaultTimezone is the resolved scheduler.timezone.
func (t *Tools) DefaultTimezone() string { return t.sched.Timezone }

// Reschedule rebuilds every trigger from the reminder store. Triggers are
// persisted and armed by the next serve.
func (t *Tools) Reschedule(ctx context.Context) (scheduling.RescheduleReport, error) {
	return t.coord.RescheduleAll(ctx, t.sched.Timezone)
}

// Plan shows what would be scheduled for reminder id right now.
func (t *Tools) Plan(ctx context.Context, id string, now time.Time) (storage.Reminder, planner.Result, error) {
	r, err := t.store.GetReminder(ctx, id)
	if err != nil {
		return storage.Reminder{}, planner.Result{}, err
	}
	return r, planner.Plan(r, t.sched.Timezone, now), nil
}

func (t *Tools) Reminders(ctx context.Context) ([]storage.Reminder, error) {
	return t.store.ListReminders(ctx)
}
