package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/jobstore"
	logx "remindbot/pkg/logx"
)

const testJobType = "test.deliver"

type firings struct {
	mu  sync.Mutex
	got []Firing
}

func (f *firings) handle(_ context.Context, fr Firing) error {
	f.mu.Lock()
	f.got = append(f.got, fr)
	f.mu.Unlock()
	return nil
}

func (f *firings) list() []Firing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Firing(nil), f.got...)
}

func newTestService(t *testing.T, store *jobstore.Store, bus eventbus.Bus) (*Service, *firings) {
	t.Helper()
	s, _ := newServiceWithEngine(t, store, bus, engine.Config{Workers: 1, QueueSize: 16})
	rec := &firings{}
	s.RegisterHandler(testJobType, rec.handle)
	return s, rec
}

func newServiceWithEngine(t *testing.T, store *jobstore.Store, bus eventbus.Bus, cfg engine.Config) (*Service, *engine.Service) {
	t.Helper()
	eng := engine.New(cfg, logx.Nop(), bus)
	eng.Start(context.Background())
	t.Cleanup(func() { eng.Stop(context.Background()) })
	return New(Config{Timezone: "UTC"}, store, eng, logx.Nop(), bus), eng
}

func triggerCount(t *testing.T, s *Service, m GroupMatcher) int {
	t.Helper()
	keys, err := s.GetTriggerKeys(context.Background(), m)
	require.NoError(t, err)
	return len(keys)
}

func openStore(t *testing.T) *jobstore.Store {
	t.Helper()
	st, err := jobstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func addTestJob(t *testing.T, s *Service) JobKey {
	t.Helper()
	key := JobKey{Name: "job:r1", Group: "jobs"}
	require.NoError(t, s.AddJob(context.Background(), JobDetail{Key: key, Type: testJobType, Durable: true}, false))
	return key
}

func TestScheduleJobValidates(t *testing.T) {
	s, _ := newTestService(t, openStore(t), nil)
	ctx := context.Background()
	job := addTestJob(t, s)

	cases := []Trigger{
		{Key: TriggerKey{Name: "", Group: "g"}, Job: job, FireAt: time.Now().Add(time.Hour)},
		{Key: TriggerKey{Name: "both", Group: "g"}, Job: job, FireAt: time.Now().Add(time.Hour), Cron: "* * * * *"},
		{Key: TriggerKey{Name: "neither", Group: "g"}, Job: job},
		{Key: TriggerKey{Name: "badcron", Group: "g"}, Job: job, Cron: "61 * * * *"},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, s.ScheduleJob(ctx, tc), ErrInvalidTrigger, tc.Key.Name)
	}

	err := s.ScheduleJob(ctx, Trigger{
		Key:    TriggerKey{Name: "orphan", Group: "g"},
		Job:    JobKey{Name: "missing", Group: "jobs"},
		FireAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	store := openStore(t)
	s, rec := newTestService(t, store, nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	job := addTestJob(t, s)
	key := TriggerKey{Name: "single:r1", Group: "reminder.single"}
	require.NoError(t, s.ScheduleJob(ctx, Trigger{
		Key:        key,
		Job:        job,
		ReminderID: "r1",
		Kind:       "single",
		FireAt:     time.Now().Add(50 * time.Millisecond),
		Data:       map[string]string{"text": "hello"},
	}))

	err := s.ScheduleJob(ctx, Trigger{Key: key, Job: job, FireAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrTriggerExists)

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.list()[0]
	assert.Equal(t, key, got.Trigger)
	assert.Equal(t, "r1", got.ReminderID)
	assert.Equal(t, "hello", got.Data["text"])

	require.Eventually(t, func() bool { return triggerCount(t, s, ReminderEquals("r1")) == 0 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.list(), 1)
}

func TestUnscheduleDisarms(t *testing.T) {
	s, rec := newTestService(t, openStore(t), nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	job := addTestJob(t, s)
	key := TriggerKey{Name: "single:r1", Group: "reminder.single"}
	require.NoError(t, s.ScheduleJob(ctx, Trigger{Key: key, Job: job, ReminderID: "r1", FireAt: time.Now().Add(80 * time.Millisecond)}))

	ok, err := s.UnscheduleJob(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UnscheduleJob(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.list())
	assert.Empty(t, s.Snapshot().Armed)
}

func TestGetTriggerKeysByGroup(t *testing.T) {
	s, _ := newTestService(t, openStore(t), nil)
	ctx := context.Background()
	job := addTestJob(t, s)
	at := time.Now().Add(time.Hour)

	for _, tk := range []TriggerKey{
		{Name: "single:r1", Group: "reminder.single"},
		{Name: "event:r1:+60s", Group: "reminder.event"},
		{Name: "other", Group: "misc"},
	} {
		require.NoError(t, s.ScheduleJob(ctx, Trigger{Key: tk, Job: job, ReminderID: "r1", FireAt: at}))
	}

	keys, err := s.GetTriggerKeys(ctx, GroupStartsWith("reminder."))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = s.GetTriggerKeys(ctx, GroupEquals("misc"))
	require.NoError(t, err)
	assert.Equal(t, []TriggerKey{{Name: "other", Group: "misc"}}, keys)

	ok, err := s.DeleteJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err = s.GetTriggerKeys(ctx, GroupStartsWith(""))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStartHandlesMisfires(t *testing.T) {
	store := openStore(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s, rec := newTestService(t, store, bus)
	s.Apply(Config{Timezone: "UTC", MisfireThreshold: time.Hour})
	ctx := context.Background()
	job := addTestJob(t, s)

	now := time.Now()
	require.NoError(t, s.ScheduleJob(ctx, Trigger{
		Key: TriggerKey{Name: "recent", Group: "reminder.single"}, Job: job, ReminderID: "r1", FireAt: now.Add(-10 * time.Minute),
	}))
	require.NoError(t, s.ScheduleJob(ctx, Trigger{
		Key: TriggerKey{Name: "stale", Group: "reminder.single"}, Job: job, ReminderID: "r2", FireAt: now.Add(-3 * time.Hour),
	}))

	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.list()[0]
	assert.Equal(t, "r1", got.ReminderID)
	assert.True(t, got.Misfired)

	require.Eventually(t, func() bool { return triggerCount(t, s, GroupEquals("reminder.single")) == 0 }, 2*time.Second, 10*time.Millisecond)

	actions := map[string]string{}
	deadline := time.After(2 * time.Second)
	for len(actions) < 2 {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TriggerMisfired {
				te := ev.Data.(TriggerEvent)
				actions[te.ReminderID] = te.Action
			}
		case <-deadline:
			t.Fatalf("misfire events missing: %v", actions)
		}
	}
	assert.Equal(t, map[string]string{"r1": "fire_now", "r2": "dropped"}, actions)
}

func TestCronTriggerArmsWithZone(t *testing.T) {
	s, _ := newTestService(t, openStore(t), nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	job := addTestJob(t, s)
	require.NoError(t, s.ScheduleJob(ctx, Trigger{
		Key:        TriggerKey{Name: "cron:r1", Group: "reminder.cron"},
		Job:        job,
		ReminderID: "r1",
		Cron:       "0 9 * * *",
		TimeZone:   "Europe/Berlin",
	}))

	snap := s.Snapshot()
	require.Len(t, snap.Armed, 1)
	next := snap.Armed[0].Next
	require.False(t, next.IsZero())
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, 9, next.In(berlin).Hour())
}

func TestSimultaneousOneShotsAllRunWhenQueueIsSmall(t *testing.T) {
	store := openStore(t)
	s, _ := newServiceWithEngine(t, store, nil, engine.Config{Workers: 1, QueueSize: 2})
	var mu sync.Mutex
	ran := map[string]int{}
	s.RegisterHandler(testJobType, func(_ context.Context, f Firing) error {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		ran[f.ReminderID]++
		mu.Unlock()
		return nil
	})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	job := addTestJob(t, s)
	at := time.Now().Add(50 * time.Millisecond)
	for i := range 8 {
		id := fmt.Sprintf("r%d", i)
		require.NoError(t, s.ScheduleJob(ctx, Trigger{
			Key:        TriggerKey{Name: "single:" + id, Group: "reminder.single"},
			Job:        job,
			ReminderID: id,
			FireAt:     at,
		}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 8
	}, 5*time.Second, 20*time.Millisecond)
	mu.Lock()
	for id, n := range ran {
		assert.Equal(t, 1, n, id)
	}
	mu.Unlock()
	require.Eventually(t, func() bool { return triggerCount(t, s, GroupEquals("reminder.single")) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopKeepsTriggerThatCouldNotBeQueued(t *testing.T) {
	store := openStore(t)
	s, eng := newServiceWithEngine(t, store, nil, engine.Config{Workers: 1, QueueSize: 1})
	rec := &firings{}
	s.RegisterHandler(testJobType, rec.handle)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	require.NoError(t, eng.Enqueue(engine.Task{Name: "blocker", Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}}))
	<-started
	require.NoError(t, eng.Enqueue(engine.Task{Name: "filler", Run: func(context.Context) error { return nil }}))

	job := addTestJob(t, s)
	key := TriggerKey{Name: "single:r1", Group: "reminder.single"}
	require.NoError(t, s.ScheduleJob(ctx, Trigger{Key: key, Job: job, ReminderID: "r1", FireAt: time.Now().Add(20 * time.Millisecond)}))
	require.Eventually(t, func() bool { return len(s.Snapshot().Armed) == 0 }, 2*time.Second, 5*time.Millisecond)

	s.Stop(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, triggerCount(t, s, ReminderEquals("r1")))
	assert.Empty(t, rec.list())
}

func TestFiredTriggerSparesReplacementUnderSameKey(t *testing.T) {
	store := openStore(t)
	s, eng := newServiceWithEngine(t, store, nil, engine.Config{Workers: 1, QueueSize: 1})
	rec := &firings{}
	s.RegisterHandler(testJobType, rec.handle)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, eng.Enqueue(engine.Task{Name: "blocker", Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}}))
	<-started
	require.NoError(t, eng.Enqueue(engine.Task{Name: "filler", Run: func(context.Context) error { return nil }}))

	job := addTestJob(t, s)
	key := TriggerKey{Name: "single:r1", Group: "reminder.single"}
	require.NoError(t, s.ScheduleJob(ctx, Trigger{Key: key, Job: job, ReminderID: "r1", FireAt: time.Now().Add(20 * time.Millisecond)}))
	// Fired and waiting for queue space.
	require.Eventually(t, func() bool { return len(s.Snapshot().Armed) == 0 }, 2*time.Second, 5*time.Millisecond)

	ok, err := s.UnscheduleJob(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.ScheduleJob(ctx, Trigger{Key: key, Job: job, ReminderID: "r1", FireAt: time.Now().Add(time.Hour)}))

	close(block)
	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	keys, err := s.GetTriggerKeys(ctx, ReminderEquals("r1"))
	require.NoError(t, err)
	assert.Equal(t, []TriggerKey{key}, keys)
	assert.Len(t, s.Snapshot().Armed, 1)
}
