package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/observability/metrics"
	"remindbot/internal/sender"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

const (
	defaultStorePath  = "./data/remindbot.db"
	defaultJobsPath   = "./data/jobs.db"
	engineHistorySize = 200
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// applyLogTarget points the Telegram log sink at telegram.group_log. An empty
// value clears the target.
func applyLogTarget(logs *logx.Service, cfg *config.Config) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		logs.SetTelegramTarget(0, 0)
		return
	}
	if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
		logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
}

func storagePaths(cfg *config.Config) (storage.Config, string, error) {
	busy, err := config.ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, "", err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = defaultStorePath
	}
	jobs := strings.TrimSpace(cfg.Storage.JobsPath)
	if jobs == "" {
		jobs = defaultJobsPath
	}
	if jobs != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(jobs), 0o755); err != nil {
			return storage.Config{}, "", fmt.Errorf("storage.jobs_path: %w", err)
		}
	}
	return storage.Config{Path: path, BusyTimeout: busy}, jobs, nil
}

func engineConfig(sc config.Scheduler) engine.Config {
	return engine.Config{
		Workers:        sc.Workers,
		QueueSize:      sc.QueueSize,
		DefaultTimeout: sc.TaskTimeout,
		HistorySize:    engineHistorySize,
	}
}

func schedulerConfig(sc config.Scheduler) scheduler.Config {
	return scheduler.Config{
		Timezone:         sc.Timezone,
		MisfireThreshold: sc.MisfireThreshold,
		TaskTimeout:      sc.TaskTimeout,
	}
}

func senderConfig(cfg *config.Config) (sender.Config, error) {
	sc, err := cfg.Sender.Resolve()
	if err != nil {
		return sender.Config{}, err
	}
	return sender.Config{ChunkSize: sc.ChunkSize, MaxAttempts: sc.MaxAttempts, RetryDelays: sc.RetryDelays}, nil
}

func adapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func routerConfig(cfg *config.Config, sc config.Scheduler) (router.Config, error) {
	cc, err := cfg.Commands.Resolve()
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		SuperAdminID:    cfg.Telegram.SuperAdminID,
		DefaultTimezone: sc.Timezone,
		Workers:         cc.Workers,
		QueueSize:       cc.QueueSize,
		CommandTimeout:  cc.Timeout,
		ThrottlePerSec:  cc.ThrottlePerSec,
		ThrottleBurst:   cc.ThrottleBurst,
	}, nil
}

func metricsConfig(cfg *config.Config) metrics.ServerConfig {
	addr := strings.TrimSpace(cfg.Metrics.Addr)
	if addr == "" {
		addr = config.DefaultMetricsAddr
	}
	return metrics.ServerConfig{Enabled: cfg.Metrics.Enabled, Addr: addr, Pprof: cfg.Metrics.Pprof}
}
