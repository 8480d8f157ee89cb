package app

import (
	"errors"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/scheduling"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/jobstore"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

// core is the part shared by the bot and the offline CLI commands: both
// stores, the execution engine, the trigger scheduler and the coordinator
// that keeps the two in sync.
type core struct {
	sched config.Scheduler

	store  storage.Store
	jobs   *jobstore.Store
	engine *engine.Service
	trig   *scheduler.Service
	coord  *scheduling.Coordinator
}

func openCore(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*core, error) {
	sc, err := cfg.Scheduler.Resolve()
	if err != nil {
		return nil, err
	}
	stCfg, jobsPath, err := storagePaths(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	jobs, err := jobstore.Open(jobsPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	eng := engine.New(engineConfig(sc), log.With(logx.String("comp", "engine")), bus)
	trig := scheduler.New(schedulerConfig(sc), jobs, eng, log.With(logx.String("comp", "scheduler")), bus)
	coord := scheduling.New(trig, store, log.With(logx.String("comp", "scheduling")),
		scheduling.WithConcurrency(sc.RescheduleConcurrency),
	)
	log.Info("storage opened", logx.String("reminders", stCfg.Path), logx.String("jobs", jobsPath))

	return &core{
		sched:  sc,
		store:  store,
		jobs:   jobs,
		engine: eng,
		trig:   trig,
		coord:  coord,
	}, nil
}

func (c *core) close() error {
	return errors.Join(c.store.Close(), c.jobs.Close())
}
