package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err, "open in-memory jobstore")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func reminderJob() *Job {
	return &Job{Name: "reminders.reminder:r1", Group: "reminders", Type: "reminder.deliver", Durable: true}
}

func TestPutJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	k := Key{Name: "reminders.reminder:r1", Group: "reminders"}

	ok, err := s.JobExists(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutJob(ctx, reminderJob(), false))
	ok, err = s.JobExists(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.PutJob(ctx, reminderJob(), false), ErrJobExists)

	j := reminderJob()
	j.Type = "reminder.other"
	require.NoError(t, s.PutJob(ctx, j, true))
}

func TestInsertTriggerRequiresJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	at := time.Now().Add(time.Hour)
	tr := &Trigger{Name: "reminder.single:r1", Group: "reminder.single", JobName: "reminders.reminder:r1", JobGroup: "reminders", ReminderID: "r1", FireAt: &at}
	assert.ErrorIs(t, s.InsertTrigger(ctx, tr), ErrJobNotFound)

	require.NoError(t, s.PutJob(ctx, reminderJob(), false))
	require.NoError(t, tr.SetData(map[string]string{"chatId": "42", "text": "hi"}))
	require.NoError(t, s.InsertTrigger(ctx, tr))

	dup := *tr
	assert.ErrorIs(t, s.InsertTrigger(ctx, &dup), ErrTriggerExists)

	got, ok, err := s.GetTrigger(ctx, tr.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", got.DataMap()["chatId"])
	require.NotNil(t, got.FireAt)
	assert.WithinDuration(t, at, *got.FireAt, time.Millisecond)
}

func TestTriggerFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutJob(ctx, reminderJob(), false))
	require.NoError(t, s.PutJob(ctx, &Job{Name: "reminders.reminder:r10", Group: "reminders", Type: "reminder.deliver"}, false))
	require.NoError(t, s.PutJob(ctx, &Job{Name: "other", Group: "maintenance", Type: "vacuum"}, false))

	insert := func(name, group, job, rid string) {
		t.Helper()
		require.NoError(t, s.InsertTrigger(ctx, &Trigger{Name: name, Group: group, JobName: job, JobGroup: "reminders", ReminderID: rid}))
	}
	insert("reminder.single:r1", "reminder.single", "reminders.reminder:r1", "r1")
	insert("reminder.event:r1:-3600s", "reminder.event", "reminders.reminder:r1", "r1")
	insert("reminder.event:r10:0s", "reminder.event", "reminders.reminder:r10", "r10")
	require.NoError(t, s.InsertTrigger(ctx, &Trigger{Name: "nightly", Group: "reminderless_ops", JobName: "other", JobGroup: "maintenance"}))

	keys, err := s.TriggerKeys(ctx, Filter{ReminderID: "r1"})
	require.NoError(t, err)
	assert.Len(t, keys, 2, "suffix r1 must not match r10")

	keys, err = s.TriggerKeys(ctx, Filter{GroupPrefix: "reminder."})
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = s.TriggerKeys(ctx, Filter{GroupPrefix: "reminder_"})
	require.NoError(t, err)
	assert.Empty(t, keys, "underscore must not act as a wildcard")

	keys, err = s.TriggerKeys(ctx, Filter{Group: "reminder.event"})
	require.NoError(t, err)
	assert.Equal(t, []Key{
		{Name: "reminder.event:r10:0s", Group: "reminder.event"},
		{Name: "reminder.event:r1:-3600s", Group: "reminder.event"},
	}, keys)

	all, err := s.Triggers(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDeleteJobCascadesTriggers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutJob(ctx, reminderJob(), false))
	require.NoError(t, s.InsertTrigger(ctx, &Trigger{Name: "reminder.cron:r1", Group: "reminder.cron", JobName: "reminders.reminder:r1", JobGroup: "reminders", ReminderID: "r1", Cron: "0 9 * * *"}))

	ok, err := s.DeleteTrigger(ctx, Key{Name: "missing", Group: "reminder.cron"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteJob(ctx, Key{Name: "reminders.reminder:r1", Group: "reminders"})
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := s.Triggers(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	ok, err = s.DeleteJob(ctx, Key{Name: "reminders.reminder:r1", Group: "reminders"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteTriggerRevisionSparesReplacement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutJob(ctx, reminderJob(), false))

	at := time.Now().Add(time.Hour)
	first := &Trigger{Name: "reminder.single:r1", Group: "reminder.single", JobName: "reminders.reminder:r1", JobGroup: "reminders", ReminderID: "r1", FireAt: &at}
	require.NoError(t, s.InsertTrigger(ctx, first))
	require.NotEmpty(t, first.Revision)
	stale := first.Revision

	_, err := s.DeleteTrigger(ctx, first.Key())
	require.NoError(t, err)
	later := at.Add(time.Hour)
	second := &Trigger{Name: first.Name, Group: first.Group, JobName: first.JobName, JobGroup: first.JobGroup, ReminderID: "r1", FireAt: &later}
	require.NoError(t, s.InsertTrigger(ctx, second))
	require.NotEqual(t, stale, second.Revision)

	ok, err := s.DeleteTriggerRevision(ctx, first.Key(), stale)
	require.NoError(t, err)
	assert.False(t, ok)
	_, found, err := s.GetTrigger(ctx, first.Key())
	require.NoError(t, err)
	assert.True(t, found)

	ok, err = s.DeleteTriggerRevision(ctx, first.Key(), second.Revision)
	require.NoError(t, err)
	assert.True(t, ok)
}
