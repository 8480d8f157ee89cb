package delivery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/planner"
	"remindbot/internal/storage"
)

func intPtr(v int) *int { return &v }

func TestFromPlanText(t *testing.T) {
	t.Parallel()

	r := storage.Reminder{ID: "r1", ChatID: -100, ThreadID: intPtr(12), Text: "standup", FormatMode: "HTML", NoPreview: true}
	in := FromPlan(r, planner.Trigger{ReminderID: "r1", Kind: planner.KindEvent, Offset: -90 * time.Second}, "bulk")

	ti, ok := in.(TextIntent)
	require.True(t, ok, "want TextIntent, got %T", in)
	require.NotNil(t, ti.TimeLeft)
	assert.Equal(t, 90*time.Second, *ti.TimeLeft)

	m := Encode(in)
	assert.Equal(t, map[string]string{
		KeyChatID:      "-100",
		KeyThreadID:    "12",
		KeyText:        "standup",
		KeyFormatMode:  "HTML",
		KeyNoPreview:   "true",
		KeyTag:         "bulk",
		KeyTimeLeftSec: "90",
	}, m)
}

func TestFromPlanSingleHasNoTimeLeft(t *testing.T) {
	t.Parallel()

	in := FromPlan(storage.Reminder{ID: "r1", ChatID: 1, Text: "x"}, planner.Trigger{Kind: planner.KindSingle}, "")
	m := Encode(in)
	assert.NotContains(t, m, KeyTimeLeftSec)
	assert.NotContains(t, m, KeyThreadID)
	assert.NotContains(t, m, KeyPoll)
}

func TestFromPlanPoll(t *testing.T) {
	t.Parallel()

	in := FromPlan(storage.Reminder{ID: "r1", ChatID: 1, Text: "Party"}, planner.Trigger{Kind: planner.KindEvent, Offset: -time.Hour, Poll: true}, "")
	m := Encode(in)
	assert.Equal(t, "1", m[KeyPoll])
	assert.Equal(t, `Who is coming to "Party"?`, m[KeyPollQuestion])
	assert.Equal(t, "Going|Maybe|Can't make it", m[KeyPollOptions])
}

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("missing chat id", func(t *testing.T) {
		_, err := Decode(map[string]string{KeyText: "x"})
		assert.True(t, errors.Is(err, ErrMalformed))
	})

	t.Run("text defaults", func(t *testing.T) {
		in, err := Decode(map[string]string{KeyChatID: "7", KeyText: "hi", KeyNoPreview: "TRUE", KeyThreadID: "x"})
		require.NoError(t, err)
		ti := in.(TextIntent)
		assert.Equal(t, int64(7), ti.ChatID)
		assert.Nil(t, ti.ThreadID)
		assert.True(t, ti.NoPreview)
		assert.Nil(t, ti.TimeLeft)
	})

	t.Run("negative time left", func(t *testing.T) {
		in, err := Decode(map[string]string{KeyChatID: "7", KeyTimeLeftSec: "-600"})
		require.NoError(t, err)
		ti := in.(TextIntent)
		require.NotNil(t, ti.TimeLeft)
		assert.Equal(t, -10*time.Minute, *ti.TimeLeft)
	})

	t.Run("poll defaults", func(t *testing.T) {
		in, err := Decode(map[string]string{KeyChatID: "7", KeyText: "Gig", KeyPoll: "true", KeyThreadID: "3"})
		require.NoError(t, err)
		pi := in.(PollIntent)
		assert.Equal(t, `Who is coming to "Gig"?`, pi.Question)
		assert.Equal(t, []string{"Going", "Maybe", "Can't make it"}, pi.Options)
		require.NotNil(t, pi.ThreadID)
		assert.Equal(t, 3, *pi.ThreadID)
	})
}

func TestHumanize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "instant"},
		{500 * time.Millisecond, "instant"},
		{45 * time.Second, "45s"},
		{90 * time.Minute, "1h 30m"},
		{28*time.Hour + 30*time.Minute, "1d 4h 30m"},
		{2*24*time.Hour + 5*time.Second, "2d 5s"},
		{-3 * time.Minute, "3m"},
	}
	for _, tt := range tests {
		if got := Humanize(tt.in); got != tt.want {
			t.Fatalf("Humanize(%v)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimeLeftSuffix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, " (starts now)", TimeLeftSuffix(0))
	assert.Equal(t, " (starts now)", TimeLeftSuffix(-time.Minute))
	assert.Equal(t, " (happens in 1h)", TimeLeftSuffix(time.Hour))
}
