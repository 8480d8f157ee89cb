package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/observability/metrics"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/sender"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type Options struct {
	// RescheduleOnStart rebuilds every trigger from the reminder store after
	// the scheduler has armed the persisted ones.
	RescheduleOnStart bool
	// Registry receives the collectors; nil uses a fresh registry.
	Registry *prometheus.Registry
}

type App struct {
	cfgm *config.Manager
	opts Options
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	*core
	adapter *telegram.Adapter
	sender  *sender.Sender
	router  *router.Router

	metrics    *metrics.Metrics
	metricsSrv *metrics.Server

	updates chan kit.Update
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// The Telegram sink stays off until the adapter exists and the target is
	// set, so Apply has nothing to warn about.
	logCfg := logConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, nil)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()
	c, err := openCore(cfg, root, bus)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	adCfg, err := adapterConfig(cfg)
	if err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	ad, err := telegram.New(adCfg, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(ad)
	applyLogTarget(logSvc, cfg)
	logSvc.Apply(logCfg)

	sndCfg, err := senderConfig(cfg)
	if err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	snd := sender.New(sndCfg, ad, root.With(logx.String("comp", "sender")), bus)
	c.trig.RegisterHandler(delivery.JobType, delivery.NewJob(snd, root.With(logx.String("comp", "delivery"))).Run)

	rCfg, err := routerConfig(cfg, c.sched)
	if err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	rt := router.New(rCfg, router.Deps{
		Messenger: ad,
		Admins:    ad,
		Menu:      ad,
		Store:     c.store,
		Scheduler: c.coord,
		Bus:       bus,
	}, root.With(logx.String("comp", "router")))

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.MustNewMetrics(reg)
	metrics.RegisterBusStats(reg, bus)
	metrics.RegisterEngineStats(reg, c.engine)

	return &App{
		cfgm:       cfgm,
		opts:       opts,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		core:       c,
		adapter:    ad,
		sender:     snd,
		router:     rt,
		metrics:    m,
		metricsSrv: metrics.NewServer(metricsConfig(cfg), reg, root),
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	a.sup.Go0("metrics.consume", func(c context.Context) {
		metrics.Consume(c, a.bus, a.metrics)
	})
	a.metricsSrv.Reconfigure(run, metricsConfig(a.cfgm.Get()))

	a.engine.Start(run)
	if err := a.trig.Start(run); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if a.opts.RescheduleOnStart {
		rep, err := a.coord.RescheduleAll(run, a.sched.Timezone)
		if err != nil {
			return fmt.Errorf("reschedule: %w", err)
		}
		a.log.Info("reminders rescheduled",
			logx.Int("reminders", rep.Reminders),
			logx.Int("triggers", rep.Scheduled),
			logx.Int("dormant", rep.Dormant),
			logx.Int("failed", rep.Failed),
			logx.Duration("took", rep.Took),
		)
	}

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the live components. Sections
// that need a restart are only reported.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("config changes need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	applyLogTarget(a.logs, next)
	a.logs.Apply(logConfig(next))

	if sc, err := senderConfig(next); err != nil {
		a.log.Warn("invalid sender config; keeping previous", logx.Err(err))
	} else {
		a.sender.Apply(sc)
	}

	sc, err := next.Scheduler.Resolve()
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		cur := schedulerConfig(sc)
		// The default zone is fixed for the process lifetime.
		cur.Timezone = a.sched.Timezone
		a.trig.Apply(cur)
	}

	if rc, err := routerConfig(next, a.sched); err != nil {
		a.log.Warn("invalid commands config; keeping previous", logx.Err(err))
	} else {
		a.router.Apply(rc)
	}

	a.metricsSrv.Reconfigure(ctx, metricsConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	// Scheduler first so nothing new is enqueued; the engine drains jobs that
	// still need the adapter.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.trig.Stop(c); return nil })
	step("engine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.metricsSrv.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.core.close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
