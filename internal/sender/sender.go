package sender

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const (
	MaxPollOptions  = 10
	defaultAttempts = 3
)

var (
	DefaultRetryDelays = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second}
	defaultPollPair    = []string{"Yes", "No"}
)

type Config struct {
	ChunkSize int
	// MaxAttempts counts the first try.
	MaxAttempts int
	// RetryDelays is the wait before retry n; the last entry is reused.
	RetryDelays []time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultAttempts
	}
	if len(c.RetryDelays) == 0 {
		c.RetryDelays = DefaultRetryDelays
	}
	return c
}

// SendReport describes how far a send got. Delivered < Chunks means the
// message was cut short and must not be treated as complete.
type SendReport struct {
	Chunks    int
	Delivered int
	Attempts  int
	First     kit.MessageRef
}

func (r SendReport) Complete() bool { return r.Chunks > 0 && r.Delivered == r.Chunks }

// DeliveryEvent is published on the bus for "delivery.retry" and
// "delivery.failed".
type DeliveryEvent struct {
	ChatID  int64  `json:"chat_id"`
	Kind    string `json:"kind"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

type Sender struct {
	mu  sync.RWMutex
	cfg Config

	m   kit.Messenger
	log logx.Logger
	bus eventbus.Bus

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, m kit.Messenger, log logx.Logger, bus eventbus.Bus) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg.withDefaults(), m: m, log: log, bus: bus, sleep: sleepCtx}
}

// Apply swaps the retry and chunking settings; in-flight sends keep theirs.
func (s *Sender) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Sender) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SendText escapes text for formatMode, splits it and sends the chunks in
// order. A nil threadID posts to the chat's main thread.
func (s *Sender) SendText(ctx context.Context, chatID int64, text, formatMode string, threadID *int, suppressPreview bool) (SendReport, error) {
	cfg := s.config()
	mode := normalizeMode(formatMode)
	chunks := splitText(tgui.EscapeFor(mode, text), cfg.ChunkSize, mode)

	to := target(chatID, threadID)
	opt := &kit.SendOptions{ParseMode: mode, DisablePreview: suppressPreview}
	rep := SendReport{Chunks: len(chunks)}
	for i, chunk := range chunks {
		ref, attempts, err := s.withRetry(ctx, cfg, chatID, "text", func(c context.Context) (kit.MessageRef, error) {
			return s.m.SendText(c, to, chunk, opt)
		})
		rep.Attempts += attempts
		if err != nil {
			return rep, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if rep.Delivered == 0 {
			rep.First = ref
		}
		rep.Delivered++
	}
	return rep, nil
}

// SendPoll sends a poll. Options are trimmed, blanks dropped and the list
// clamped to 10; fewer than two usable options become Yes/No.
func (s *Sender) SendPoll(ctx context.Context, chatID int64, question string, options []string, threadID *int, anonymous, multiAnswer bool) (SendReport, error) {
	cfg := s.config()
	opts := NormalizePollOptions(options)
	to := target(chatID, threadID)
	popt := &kit.PollOptions{Anonymous: anonymous, MultipleAnswers: multiAnswer}

	rep := SendReport{Chunks: 1}
	ref, attempts, err := s.withRetry(ctx, cfg, chatID, "poll", func(c context.Context) (kit.MessageRef, error) {
		return s.m.SendPoll(c, to, question, opts, popt)
	})
	rep.Attempts = attempts
	if err != nil {
		return rep, fmt.Errorf("send poll: %w", err)
	}
	rep.Delivered, rep.First = 1, ref
	return rep, nil
}

// NormalizePollOptions trims options, drops blanks and clamps to 10.
func NormalizePollOptions(options []string) []string {
	out := make([]string, 0, min(len(options), MaxPollOptions))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		out = append(out, o)
		if len(out) == MaxPollOptions {
			break
		}
	}
	if len(out) < 2 {
		return append([]string(nil), defaultPollPair...)
	}
	return out
}

func (s *Sender) withRetry(ctx context.Context, cfg Config, chatID int64, kind string, fn func(context.Context) (kit.MessageRef, error)) (kit.MessageRef, int, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return kit.MessageRef{}, attempt - 1, err
		}
		ref, err := fn(ctx)
		if err == nil {
			return ref, attempt, nil
		}
		lastErr = err
		if kit.IsPermanent(err) || ctx.Err() != nil {
			s.publish(eventbus.DeliveryFailed, chatID, kind, attempt, err)
			return kit.MessageRef{}, attempt, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.RetryDelays[min(attempt-1, len(cfg.RetryDelays)-1)]
		if hint, ok := kit.RetryAfter(err); ok {
			wait = hint
		}
		s.log.Warn("send failed; retrying",
			logx.Int64("chat_id", chatID),
			logx.String("kind", kind),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
		s.publish(eventbus.DeliveryRetry, chatID, kind, attempt, err)
		if err := s.sleep(ctx, wait); err != nil {
			return kit.MessageRef{}, attempt, err
		}
	}
	s.publish(eventbus.DeliveryFailed, chatID, kind, cfg.MaxAttempts, lastErr)
	return kit.MessageRef{}, cfg.MaxAttempts, fmt.Errorf("gave up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func (s *Sender) publish(typ string, chatID int64, kind string, attempt int, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: DeliveryEvent{ChatID: chatID, Kind: kind, Attempt: attempt, Error: err.Error()}})
}

func target(chatID int64, threadID *int) kit.ChatTarget {
	to := kit.ChatTarget{ChatID: chatID}
	if threadID != nil {
		to.ThreadID = *threadID
	}
	return to
}

// normalizeMode maps user-supplied format modes onto the transport's
// canonical spellings; anything unknown is sent as plain text.
func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "markdownv2":
		return kit.ParseModeMarkdownV2
	case "markdown":
		return kit.ParseModeMarkdown
	case "html":
		return kit.ParseModeHTML
	default:
		return kit.ParseModeNone
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
