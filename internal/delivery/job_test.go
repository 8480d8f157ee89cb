package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/sender"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

type call struct {
	poll     bool
	chatID   int64
	text     string
	mode     string
	threadID *int
	preview  bool
	options  []string
}

type fakeSender struct {
	calls []call
	err   error
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text, formatMode string, threadID *int, suppressPreview bool) (sender.SendReport, error) {
	f.calls = append(f.calls, call{chatID: chatID, text: text, mode: formatMode, threadID: threadID, preview: suppressPreview})
	if f.err != nil {
		return sender.SendReport{Chunks: 1}, f.err
	}
	return sender.SendReport{Chunks: 1, Delivered: 1, Attempts: 1}, nil
}

func (f *fakeSender) SendPoll(_ context.Context, chatID int64, question string, options []string, threadID *int, _, _ bool) (sender.SendReport, error) {
	f.calls = append(f.calls, call{poll: true, chatID: chatID, text: question, threadID: threadID, options: options})
	return sender.SendReport{Chunks: 1, Delivered: 1, Attempts: 1}, f.err
}

func firing(data map[string]string) scheduler.Firing {
	now := time.Now()
	return scheduler.Firing{
		Trigger:     scheduler.TriggerKey{Name: "reminder.event:r1:-3600s", Group: "reminder.event"},
		ReminderID:  "r1",
		ScheduledAt: now,
		FiredAt:     now,
		Data:        data,
	}
}

func TestJobSendsTextWithSuffix(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	j := NewJob(s, logx.Nop())

	err := j.Run(context.Background(), firing(map[string]string{
		KeyChatID: "5", KeyText: "Concert", KeyTimeLeftSec: "3600", KeyFormatMode: "Markdown", KeyNoPreview: "true",
	}))
	require.NoError(t, err)
	require.Len(t, s.calls, 1)
	assert.Equal(t, call{chatID: 5, text: "Concert (happens in 1h)", mode: "Markdown", preview: true}, s.calls[0])
}

func TestJobSendsPoll(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	j := NewJob(s, logx.Nop())

	require.NoError(t, j.Run(context.Background(), firing(map[string]string{
		KeyChatID: "5", KeyText: "Concert", KeyPoll: "1", KeyPollOptions: "A|B",
	})))
	require.Len(t, s.calls, 1)
	assert.True(t, s.calls[0].poll)
	assert.Equal(t, []string{"A", "B"}, s.calls[0].options)
}

func TestJobSwallowsFailures(t *testing.T) {
	t.Parallel()

	s := &fakeSender{err: errors.New("chat not found")}
	j := NewJob(s, logx.Nop())

	assert.NoError(t, j.Run(context.Background(), firing(map[string]string{KeyChatID: "5", KeyText: "x"})))
	assert.Len(t, s.calls, 1)

	// Malformed data never reaches the sender.
	assert.NoError(t, j.Run(context.Background(), firing(map[string]string{KeyText: "x"})))
	assert.Len(t, s.calls, 1)
}
