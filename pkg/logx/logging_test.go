package logx

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "remindbot/internal/transport"
)

type recordingMessenger struct {
	mu    sync.Mutex
	texts []string
	to    []kit.ChatTarget
}

func (r *recordingMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	r.to = append(r.to, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (r *recordingMessenger) SendPoll(context.Context, kit.ChatTarget, string, []string, *kit.PollOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (r *recordingMessenger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRenderLine(t *testing.T) {
	t.Parallel()

	got := renderLine([]byte(`{"level":"warn","time":"x","message":"send failed","chat":42,"attempt":2}`))
	assert.Equal(t, "[WARN] send failed\n- attempt=2\n- chat=42", got)

	assert.Equal(t, "not json", renderLine([]byte("  not json  \n")))

	long := renderLine([]byte(`{"level":"error","message":"boom","reminder":"` + strings.Repeat("ж", 700) + `"}`))
	assert.Contains(t, long, "- reminder="+strings.Repeat("ж", 600)+"…")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoggerWithAndZero(t *testing.T) {
	t.Parallel()

	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("discarded")
	assert.False(t, Nop().IsZero())

	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	base := Logger{static: &zl}
	child := base.With(String("component", "scheduler"))
	child.Warn("misfire", Int("late_s", 90), Err(nil))
	base.Debug("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"component":"scheduler"`)
	assert.Contains(t, lines[0], `"late_s":90`)
	assert.Contains(t, lines[0], `"caller":"logging_test.go:`)
	assert.NotContains(t, lines[0], `"err"`)
	assert.NotContains(t, lines[1], "component")
}

func TestFileSinkAndLevelReload(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/bot.log"
	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}}, nil)
	defer svc.Close()

	log.Info("hidden")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("visible")
	require.NoError(t, svc.Close())

	data := readFile(t, path)
	assert.NotContains(t, data, "hidden")
	assert.Contains(t, data, "visible")
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	t.Parallel()

	m := &recordingMessenger{}
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			MinLevel:   "error",
			RatePerSec: 50,
		},
	}, nil)
	defer svc.Close()
	svc.SetSender(m)
	svc.SetTelegramTarget(-100123, 7)

	log.Info("routine")
	log.Error("delivery broke", String("reminder", "r1"))

	require.Eventually(t, func() bool { return m.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.texts, 1)
	assert.Contains(t, m.texts[0], "delivery broke")
	assert.Contains(t, m.texts[0], "reminder=r1")
	assert.Equal(t, kit.ChatTarget{ChatID: -100123, ThreadID: 7}, m.to[0])
}
