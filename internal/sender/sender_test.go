package sender

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sentText struct {
	to   kit.ChatTarget
	text string
	opt  kit.SendOptions
}

type fakeMessenger struct {
	mu    sync.Mutex
	errs  []error // consumed per call; nil entries succeed
	texts []sentText
	polls [][]string
	calls int
}

func (f *fakeMessenger) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return kit.MessageRef{}, err
	}
	f.texts = append(f.texts, sentText{to: to, text: text, opt: *opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.texts)}, nil
}

func (f *fakeMessenger) SendPoll(_ context.Context, to kit.ChatTarget, _ string, options []string, _ *kit.PollOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return kit.MessageRef{}, err
	}
	f.polls = append(f.polls, options)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 99}, nil
}

func newTestSender(m kit.Messenger) (*Sender, *[]time.Duration) {
	s := New(Config{}, m, logx.Nop(), nil)
	var waits []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return s, &waits
}

func intPtr(v int) *int { return &v }

func TestSendTextEscapesAndTargetsThread(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	s, _ := newTestSender(m)

	rep, err := s.SendText(context.Background(), 42, "v1.2 is out!", "markdownv2", intPtr(7), true)
	require.NoError(t, err)
	assert.True(t, rep.Complete())
	require.Len(t, m.texts, 1)
	assert.Equal(t, `v1\.2 is out\!`, m.texts[0].text)
	assert.Equal(t, kit.ChatTarget{ChatID: 42, ThreadID: 7}, m.texts[0].to)
	assert.Equal(t, kit.SendOptions{ParseMode: "MarkdownV2", DisablePreview: true}, m.texts[0].opt)
}

func TestSendTextChunksInOrder(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	s, _ := newTestSender(m)

	line := strings.Repeat("x", 999) + "\n"
	text := strings.Repeat(line, 8) // 8000 runes
	rep, err := s.SendText(context.Background(), 1, text, "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Chunks)
	assert.Equal(t, 3, rep.Delivered)

	var joined []string
	for _, st := range m.texts {
		assert.LessOrEqual(t, len([]rune(st.text)), DefaultChunkSize)
		joined = append(joined, st.text)
	}
	assert.Equal(t, strings.TrimRight(text, "\n"), strings.Join(joined, "\n"))
}

func TestSendTextRetriesTransient(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	m := &fakeMessenger{errs: []error{boom, kit.Transient(errors.New("flood"), 7*time.Second)}}
	s, waits := newTestSender(m)

	rep, err := s.SendText(context.Background(), 1, "hi", "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 7 * time.Second}, *waits)
}

func TestSendTextGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	boom := kit.Transient(errors.New("502 bad gateway"), 0)
	m := &fakeMessenger{errs: []error{boom, boom, boom, boom}}
	s, waits := newTestSender(m)

	rep, err := s.SendText(context.Background(), 1, "hi", "", nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, rep.Complete())
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetryScheduleReusesLastDelay(t *testing.T) {
	t.Parallel()

	boom := errors.New("timeout")
	m := &fakeMessenger{errs: []error{boom, boom, boom, boom, boom}}
	s, waits := newTestSender(m)
	s.Apply(Config{MaxAttempts: 5})

	_, err := s.SendText(context.Background(), 1, "hi", "", nil, false)
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 5 * time.Second}, *waits)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	perm := kit.Permanent(errors.New("chat not found"))
	m := &fakeMessenger{errs: []error{perm}}
	s, waits := newTestSender(m)

	_, err := s.SendText(context.Background(), 1, "hi", "", nil, false)
	require.Error(t, err)
	assert.True(t, kit.IsPermanent(err))
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, *waits)
}

func TestCancellationReportsPartialDelivery(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeMessenger{errs: []error{nil, errors.New("timeout")}}
	s, _ := newTestSender(m)
	s.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	text := strings.Repeat("a", DefaultChunkSize) + strings.Repeat("b", 10)
	rep, err := s.SendText(ctx, 1, text, "", nil, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, rep.Chunks)
	assert.Equal(t, 1, rep.Delivered)
	assert.False(t, rep.Complete())
}

func TestSendPollNormalizesOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"trimmed", []string{" Going ", "", "Maybe "}, []string{"Going", "Maybe"}},
		{"too few", []string{"only", "  "}, []string{"Yes", "No"}},
		{"none", nil, []string{"Yes", "No"}},
		{"clamped", strings.Split("1,2,3,4,5,6,7,8,9,10,11,12", ","), strings.Split("1,2,3,4,5,6,7,8,9,10", ",")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &fakeMessenger{}
			s, _ := newTestSender(m)
			rep, err := s.SendPoll(context.Background(), 5, "Who?", tt.in, nil, false, false)
			require.NoError(t, err)
			assert.True(t, rep.Complete())
			require.Len(t, m.polls, 1)
			assert.Equal(t, tt.want, m.polls[0])
		})
	}
}
