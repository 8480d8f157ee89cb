package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduling"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Scheduler is the part of the scheduling coordinator the commands use.
type Scheduler interface {
	UpsertAndReschedule(ctx context.Context, r storage.Reminder, fallbackTZ, tag string) (scheduling.Outcome, error)
	DeleteAndUnschedule(ctx context.Context, id string) error
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Policy      Policy
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Msg     *kit.Message
	Chat    kit.ChatTarget
	Command string
	// Args is the raw text after the command word. Newlines are kept.
	Args   string
	ReqID  string
	Logger logx.Logger
}

type Config struct {
	SuperAdminID    int64
	DefaultTimezone string
	Workers         int
	QueueSize       int
	CommandTimeout  time.Duration
	MenuCacheSize   int
	// ThrottlePerSec limits commands per user; 0 disables throttling.
	ThrottlePerSec float64
	ThrottleBurst  int
}

type Deps struct {
	Messenger kit.Messenger
	Admins    AdminChecker
	// Menu is optional; nil disables command menu publishing.
	Menu      kit.CommandMenuUpdater
	Store     storage.Store
	Scheduler Scheduler
	Bus       eventbus.Bus
	Now       func() time.Time
}

// CommandEvent is published on the bus as "command.handled".
type CommandEvent struct {
	Command string
	ChatID  int64
	Outcome string // ok, denied, failed, throttled
}

const (
	defaultQueueSize      = 256
	defaultCommandTimeout = 30 * time.Second
)

type Router struct {
	deps Deps
	log  logx.Logger

	cfg      atomic.Pointer[Config]
	throttle atomic.Pointer[Middleware]

	mu       sync.RWMutex
	commands map[string]*Command
	ordered  []*Command

	menus *MenuCache

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(cfg Config, deps Deps, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	qs := cfg.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	r := &Router{
		deps:     deps,
		log:      log,
		commands: map[string]*Command{},
		menus:    NewMenuCache(cfg.MenuCacheSize),
		jobs:     make(chan func(), qs),
	}
	r.Apply(cfg)
	r.register(r.reminderCommands()...)
	r.register(r.settingsCommands()...)
	r.register(r.aclCommands()...)
	r.register(r.helpCommand())
	return r
}

// Apply swaps the live settings (superadmin, default timezone, timeouts).
// Worker and queue sizes are fixed at construction.
func (r *Router) Apply(cfg Config) {
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = storage.DefaultTimeZone
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	prev := r.cfg.Swap(&cfg)
	if prev == nil || prev.ThrottlePerSec != cfg.ThrottlePerSec || prev.ThrottleBurst != cfg.ThrottleBurst {
		mw := ThrottleUsers(cfg.ThrottlePerSec, cfg.ThrottleBurst, time.Minute, func(ctx context.Context, req *Request) error {
			r.publish(req, "throttled")
			return nil
		})
		r.throttle.Store(&mw)
	}
}

func (r *Router) config() Config { return *r.cfg.Load() }

func (r *Router) register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range cmds {
		c := cmds[i]
		if c.Name == "" || c.Handle == nil {
			continue
		}
		r.commands[c.Name] = &c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				r.commands[a] = &c
			}
		}
		r.ordered = append(r.ordered, &c)
	}
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.ordered))
	for _, c := range r.ordered {
		out = append(out, *c)
	}
	return out
}

func (r *Router) lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Commands run on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	cfg := r.config()
	workers := cfg.Workers
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup, r.running = sup, true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.Stack())
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	sup.Go0("telegram.menu.global", func(c context.Context) {
		r.publishGlobalMenus(c)
	})

	defer func() {
		r.runMu.Lock()
		r.running = false
		r.sup = nil
		close(r.jobs)
		r.runMu.Unlock()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	name, _, args, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	if msg.IsGroup() {
		r.ensureChatMenus(msg.ChatID)
	}
	cmd, ok := r.lookup(name)
	if !ok {
		// Unknown commands are common in groups with several bots; stay quiet.
		return
	}

	cfg := r.config()
	rid := newReqID()
	req := &Request{
		Msg:     msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = cfg.CommandTimeout
	}
	policy := cmd.Policy
	handle := cmd.Handle
	authorized := func(ctx context.Context, req *Request) error {
		superID := r.config().SuperAdminID
		err := Admit(ctx, req.Msg, superID, r.deps.Store)
		if err == nil {
			err = Authorize(ctx, policy, req.Msg, superID, r.deps.Admins)
		}
		if err != nil {
			var d *Denial
			if errors.As(err, &d) {
				r.publish(req, "denied")
				r.reply(ctx, req, tgui.New().Plain().Line("Access denied: "+d.Reason).Build())
				return nil
			}
			r.publish(req, "failed")
			return err
		}
		if err := handle(ctx, req); err != nil {
			r.publish(req, "failed")
			return err
		}
		r.publish(req, "ok")
		return nil
	}

	final := Chain(
		authorized,
		Recover(r.log),
		LogCommands(r.log),
		*r.throttle.Load(),
		WithTimeout(timeout),
	)

	if !r.tryEnqueue(func() { _ = final(root, req) }) {
		r.reply(root, req, tgui.New().Plain().Line("busy, try again").Build())
	}
}

func (r *Router) publish(req *Request, outcome string) {
	if r.deps.Bus == nil {
		return
	}
	r.deps.Bus.Publish(eventbus.Event{
		Type: eventbus.CommandHandled,
		Data: CommandEvent{Command: req.Command, ChatID: req.Chat.ChatID, Outcome: outcome},
	})
}

func (r *Router) reply(ctx context.Context, req *Request, m tgui.Message) {
	if r.deps.Messenger == nil {
		return
	}
	text := tgui.TruncRunes(m.Text, 4000)
	if _, err := r.deps.Messenger.SendText(ctx, req.Chat, text, m.Opt); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}
