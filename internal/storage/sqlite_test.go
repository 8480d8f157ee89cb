package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "reminders.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st.(*sqliteStore)
}

func TestReminderLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	thread := 42
	r := &Reminder{ChatID: -1001, ThreadID: &thread, Text: "standup", RunAt: "2030-01-02 09:00", NoPreview: true, CreatedBy: 7}
	require.NoError(t, st.CreateReminder(ctx, r))
	require.Len(t, r.ID, 32)
	assert.Equal(t, DefaultTimeZone, r.TimeZone)

	got, err := st.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup", got.Text)
	require.NotNil(t, got.ThreadID)
	assert.Equal(t, 42, *got.ThreadID)
	assert.True(t, got.NoPreview)
	assert.Equal(t, int64(7), got.CreatedBy)

	got.Text = "standup moved"
	got.ThreadID = nil
	require.NoError(t, st.UpdateReminder(ctx, &got))

	again, err := st.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup moved", again.Text)
	assert.Nil(t, again.ThreadID)

	ok, err := st.DeleteReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.DeleteReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.GetReminder(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUnknownReminder(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	err := st.UpdateReminder(context.Background(), &Reminder{ID: "missing", ChatID: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOwnedOrdersByUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	st.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, st.CreateReminder(ctx, &Reminder{ChatID: 10, Text: text, CreatedBy: 1}))
	}
	require.NoError(t, st.CreateReminder(ctx, &Reminder{ChatID: 10, Text: "other user", CreatedBy: 2}))
	require.NoError(t, st.CreateReminder(ctx, &Reminder{ChatID: 11, Text: "other chat", CreatedBy: 1}))

	list, err := st.ListOwned(ctx, 10, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].Text)
	assert.Equal(t, "b", list[1].Text)

	all, err := st.ListReminders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestFindOwnedByPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	r := &Reminder{ID: "abcdef0123456789abcdef0123456789", ChatID: 5, Text: "x", CreatedBy: 9}
	require.NoError(t, st.CreateReminder(ctx, r))

	got, err := st.FindOwned(ctx, 5, 9, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	got, err = st.FindOwned(ctx, 5, 9, "abcdef01-2345-6789-abcd-ef0123456789")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = st.FindOwned(ctx, 5, 10, "abcd")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.FindOwned(ctx, 5, 9, "ffff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOwnedIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.CreateReminder(ctx, &Reminder{ID: "b1", ChatID: 3, Text: "1", CreatedBy: 1}))
	require.NoError(t, st.CreateReminder(ctx, &Reminder{ID: "a1", ChatID: 3, Text: "2", CreatedBy: 1}))
	require.NoError(t, st.CreateReminder(ctx, &Reminder{ID: "c1", ChatID: 3, Text: "3", CreatedBy: 2}))
	for i := 0; i < 12; i++ {
		require.NoError(t, st.CreateReminder(ctx, &Reminder{ChatID: 4, Text: "bulk", CreatedBy: 1}))
	}

	ids, err := st.OwnedIDs(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1"}, ids)

	// Listing never removes anything.
	rest, err := st.ListReminders(ctx)
	require.NoError(t, err)
	assert.Len(t, rest, 15)

	ids, err = st.OwnedIDs(ctx, 4, 1)
	require.NoError(t, err)
	assert.Len(t, ids, 12)

	ids, err = st.OwnedIDs(ctx, 3, 9)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSettingsUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.GetUserSettings(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.PutUserSettings(ctx, UserSettings{UserID: 1, TimeZone: "Europe/Berlin"}))
	require.NoError(t, st.PutUserSettings(ctx, UserSettings{UserID: 1, TimeZone: "Asia/Tokyo"}))
	us, err := st.GetUserSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", us.TimeZone)

	thread := 77
	require.NoError(t, st.PutChatSettings(ctx, ChatSettings{ChatID: -5, DefaultThreadID: &thread}))
	cs, err := st.GetChatSettings(ctx, -5)
	require.NoError(t, err)
	require.NotNil(t, cs.DefaultThreadID)
	assert.Equal(t, 77, *cs.DefaultThreadID)
	assert.Nil(t, cs.ControlThreadID)

	assert.ErrorIs(t, st.PutUserSettings(ctx, UserSettings{UserID: 2}), ErrInvalid)
}
