// Package adapter connects the bot to Telegram through telebot: long-polled
// updates flow in, rate-limited sends and admin lookups flow out.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	dropReportEvery    = 5 * time.Second
	stopGrace          = 2 * time.Second
)

var errPollerExited = errors.New("poller exited")

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter
	admins  *expirable.LRU[adminKey, bool]

	// inbox is nil while stopped; handlers then discard updates.
	inbox   atomic.Pointer[inbox]
	dropped atomic.Uint64

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	menuMu   sync.Mutex
	menuSeen map[string]uint64
}

type inbox struct{ ch chan<- kit.Update }

type adminKey struct{ chatID, userID int64 }

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.AdminCacheTTL <= 0 {
		cfg.AdminCacheTTL = defaultAdminCacheTTL
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:      cfg,
		log:      log,
		bot:      bot,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, int(cfg.RatePerSec))),
		admins:   expirable.NewLRU[adminKey, bool](adminCacheSize, nil, cfg.AdminCacheTTL),
		menuSeen: map[string]uint64{},
	}
	bot.Handle(tele.OnText, a.onText)
	return a, nil
}

// Start begins long polling and delivers updates to out. Updates that do not
// fit into out are counted and reported periodically.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.inbox.Store(&inbox{ch: out})
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.sup = sup

	sup.Go0("updates.drops", func(c context.Context) { a.reportDrops(c, cap(out)) })
	sup.Go0("poll.stop", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// telebot's Start returns on Stop, and on some network failures.
	sup.GoRestart("poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		if c.Err() != nil {
			return nil
		}
		return errPollerExited
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

// Stop ends polling. It waits at most stopGrace, since a long poll in
// flight cannot be interrupted.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.inbox.Store(nil)
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("polling did not stop in time", logx.Err(err))
	}
	a.log.Info("polling stopped")
	return nil
}

func (a *Adapter) reportDrops(ctx context.Context, capacity int) {
	t := time.NewTicker(dropReportEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		if n := a.dropped.Swap(0); n > 0 {
			a.log.Warn("updates dropped: consumer too slow", logx.Uint64("count", n), logx.Int("buffer", capacity))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
