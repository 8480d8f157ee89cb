package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/config"
	"remindbot/internal/planner"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"

	_ "time/tzdata"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestToolsRescheduleAndPlan(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeConfig(t, `{
  "telegram": {"token": ""},
  "logging": {"level": "error"},
  "storage": {"path": "`+filepath.ToSlash(filepath.Join(dir, "r.db"))+`", "jobs_path": "`+filepath.ToSlash(filepath.Join(dir, "sub", "jobs.db"))+`"},
  "scheduler": {"timezone": "Europe/Berlin"}
}`)

	tools, err := OpenTools(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tools.Close() })
	assert.Equal(t, "Europe/Berlin", tools.DefaultTimezone())

	ctx := context.Background()
	once := &storage.Reminder{ChatID: -100, Text: "launch", RunAt: "2099-01-02 09:00", TimeZone: "Europe/Berlin", CreatedBy: 1}
	daily := &storage.Reminder{ChatID: -100, Text: "standup", Cron: "0 9 * * 1-5", TimeZone: "Europe/Berlin", CreatedBy: 1}
	inert := &storage.Reminder{ChatID: -100, Text: "nothing", CreatedBy: 1}
	for _, r := range []*storage.Reminder{once, daily, inert} {
		require.NoError(t, tools.store.CreateReminder(ctx, r))
	}

	rep, err := tools.Reschedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Reminders)
	assert.Equal(t, 2, rep.Scheduled)
	assert.Equal(t, 1, rep.Dormant)
	assert.Zero(t, rep.Failed)

	keys, err := tools.trig.GetTriggerKeys(ctx, scheduler.GroupStartsWith(planner.Namespace))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	r, res, err := tools.Plan(ctx, once.ID, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "launch", r.Text)
	require.Len(t, res.Triggers, 1)
	assert.Equal(t, planner.KindSingle, res.Triggers[0].Kind)
	assert.Equal(t, time.Date(2099, 1, 2, 8, 0, 0, 0, time.UTC), res.Triggers[0].FireAt.UTC())

	_, _, err = tools.Plan(ctx, "missing", time.Now())
	require.ErrorIs(t, err, storage.ErrNotFound)

	all, err := tools.Reminders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOpenToolsRejectsBadScheduler(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeConfig(t, `{
  "storage": {"path": "`+filepath.ToSlash(filepath.Join(dir, "r.db"))+`"},
  "scheduler": {"timezone": "Mars/Olympus"}
}`)
	_, err := OpenTools(p)
	require.Error(t, err)
}

func TestConfigMapping(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{Token: "x", SuperAdminID: 99, PollTimeout: "30s", RatePerSec: 10},
		Commands: config.CommandsConfig{Workers: 3, Timeout: "10s"},
		Metrics:  config.MetricsConfig{Enabled: true, Pprof: true},
	}
	sc, err := cfg.Scheduler.Resolve()
	require.NoError(t, err)

	rc, err := routerConfig(cfg, sc)
	require.NoError(t, err)
	assert.Equal(t, int64(99), rc.SuperAdminID)
	assert.Equal(t, config.DefaultTimezone, rc.DefaultTimezone)
	assert.Equal(t, 3, rc.Workers)
	assert.Equal(t, 10*time.Second, rc.CommandTimeout)

	ac, err := adapterConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ac.PollTimeout)
	assert.Equal(t, 10.0, ac.RatePerSec)

	mc := metricsConfig(cfg)
	assert.True(t, mc.Enabled)
	assert.True(t, mc.Pprof)
	assert.Equal(t, config.DefaultMetricsAddr, mc.Addr)

	ec := engineConfig(sc)
	assert.Equal(t, sc.Workers, ec.Workers)
	assert.Equal(t, sc.TaskTimeout, ec.DefaultTimeout)

	sch := schedulerConfig(sc)
	assert.Equal(t, time.Hour, sch.MisfireThreshold)

	cfg.Sender.RetryDelays = []string{"nope"}
	_, err = senderConfig(cfg)
	require.Error(t, err)
}

func TestStoragePathsDefaults(t *testing.T) {
	t.Parallel()
	st, jobs, err := storagePaths(&config.Config{Storage: config.StorageConfig{Path: "x.db", JobsPath: ":memory:", BusyTimeout: "2s"}})
	require.NoError(t, err)
	assert.Equal(t, "x.db", st.Path)
	assert.Equal(t, 2*time.Second, st.BusyTimeout)
	assert.Equal(t, ":memory:", jobs)

	_, _, err = storagePaths(&config.Config{Storage: config.StorageConfig{BusyTimeout: "later"}})
	require.Error(t, err)
}
