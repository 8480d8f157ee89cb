package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	oT, nT := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(oT.PollTimeout) != strings.TrimSpace(nT.PollTimeout) ||
		oT.SuperAdminID != nT.SuperAdminID ||
		oT.RatePerSec != nT.RatePerSec ||
		strings.TrimSpace(oT.GroupLog) != strings.TrimSpace(nT.GroupLog) ||
		(strings.TrimSpace(oT.Token) != strings.TrimSpace(nT.Token)) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nT.PollTimeout)),
			logx.Bool("telegram.super_admin_set", nT.SuperAdminID != 0),
			logx.Float64("telegram.rate_per_sec", nT.RatePerSec),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nT.GroupLog) != ""),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oT.Token) != strings.TrimSpace(nT.Token)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.jobs_path_set", strings.TrimSpace(newCfg.Storage.JobsPath) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		nS := newCfg.Scheduler
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(nS.Timezone)),
			logx.Int("scheduler.workers", nS.Workers),
			logx.Int("scheduler.queue_size", nS.QueueSize),
			logx.String("scheduler.misfire_threshold", strings.TrimSpace(nS.MisfireThreshold)),
			logx.String("scheduler.task_timeout", strings.TrimSpace(nS.TaskTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sender, newCfg.Sender) {
		changed = append(changed, "sender")
		attrs = append(attrs,
			logx.Int("sender.chunk_size", newCfg.Sender.ChunkSize),
			logx.Int("sender.max_attempts", newCfg.Sender.MaxAttempts),
			logx.String("sender.retry_delays", strings.Join(newCfg.Sender.RetryDelays, ",")),
		)
	}

	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		nC := newCfg.Commands
		attrs = append(attrs,
			logx.Int("commands.workers", nC.Workers),
			logx.String("commands.timeout", strings.TrimSpace(nC.Timeout)),
			logx.Float64("commands.throttle_per_sec", nC.ThrottlePerSec),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)),
			logx.Bool("metrics.pprof", newCfg.Metrics.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect after a
// restart. Logging, sender, metrics, command timeouts and scheduler
// misfire/timeout settings are applied live.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram != newCfg.Telegram {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	oS, nS := oldCfg.Scheduler, newCfg.Scheduler
	if oS.Workers != nS.Workers || oS.QueueSize != nS.QueueSize || strings.TrimSpace(oS.Timezone) != strings.TrimSpace(nS.Timezone) {
		out = append(out, "scheduler")
	}
	oC, nC := oldCfg.Commands, newCfg.Commands
	if oC.Workers != nC.Workers || oC.QueueSize != nC.QueueSize {
		out = append(out, "commands")
	}
	return out
}
