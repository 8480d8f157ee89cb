package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

const (
	tgQueueSize   = 256
	tgSendTimeout = 10 * time.Second
	tgMaxMessage  = 3500
	tgMaxValue    = 600
	tgMaxStack    = 900
)

type tgLine struct {
	to   kit.ChatTarget
	text string
}

// telegramSink is a zerolog.LevelWriter that forwards lines to a chat from
// a single background worker. Anything the limiter or the queue cannot take
// is discarded.
type telegramSink struct {
	mu       sync.Mutex
	sender   kit.Messenger
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue   chan tgLine
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newTelegramSink(sender kit.Messenger) *telegramSink {
	return &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		queue:    make(chan tgLine, tgQueueSize),
	}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		t.target.ThreadID = cfg.ThreadID
	}
	if cfg.Enabled && t.target.ChatID == 0 {
		fmt.Fprintln(os.Stderr, "logx: telegram logging enabled without a target chat")
	}
}

func (t *telegramSink) setSender(m kit.Messenger) {
	t.mu.Lock()
	t.sender = m
	t.mu.Unlock()
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.target.ChatID = chatID
	if threadID != 0 {
		t.target.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go t.run(ctx)
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) run(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-t.queue:
			t.mu.Lock()
			sender := t.sender
			t.mu.Unlock()
			if sender == nil {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, tgSendTimeout)
			_, _ = sender.SendText(sendCtx, ln.to, ln.text, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

// WriteLevel never blocks and never fails.
func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, minLvl, lim, ready := t.target, t.minLevel, t.limiter, t.sender != nil
	t.mu.Unlock()

	if !ready || to.ChatID == 0 || lim == nil || level < minLvl || !lim.Allow() {
		return len(p), nil
	}
	text := renderLine(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- tgLine{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// renderLine turns a zerolog JSON line into "[LEVEL] message" followed by
// one "- key=value" row per field in key order.
func renderLine(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return tgui.TruncRunes(string(p), tgMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	delete(m, zerolog.TimestampFieldName)
	delete(m, zerolog.LevelFieldName)
	delete(m, zerolog.MessageFieldName)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if k == "stack" {
			b.WriteString("\n- stack=\n" + tgui.TruncRunes(fmt.Sprint(m[k]), tgMaxStack))
			continue
		}
		b.WriteString("\n- " + k + "=" + tgui.TruncRunes(fmt.Sprint(m[k]), tgMaxValue))
	}
	return tgui.TruncRunes(b.String(), tgMaxMessage)
}
