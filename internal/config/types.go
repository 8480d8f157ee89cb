package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Sender    SenderConfig    `json:"sender"`
	Commands  CommandsConfig  `json:"commands"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type TelegramConfig struct {
	// Token may be left empty when BOT_TOKEN is set in the environment.
	Token        string `json:"token"`
	SuperAdminID int64  `json:"super_admin_id"`
	GroupLog     string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// RatePerSec caps outgoing API calls; 0 uses the default (25/s).
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig locates the two sqlite databases.
//
// Example:
//
//	"storage": { "path": "./data/remindbot.db", "jobs_path": "./data/jobs.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	JobsPath    string `json:"jobs_path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls trigger planning and execution.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "Europe/Moscow" (fallback for reminders without a zone)
//   - workers: 4
//   - queue_size: 256
//   - misfire_threshold: "1h"
//   - task_timeout: "2m"
//   - reschedule_concurrency: 8
type SchedulerConfig struct {
	Timezone              string `json:"timezone,omitempty"`
	Workers               int    `json:"workers,omitempty"`
	QueueSize             int    `json:"queue_size,omitempty"`
	MisfireThreshold      string `json:"misfire_threshold,omitempty"`
	TaskTimeout           string `json:"task_timeout,omitempty"`
	RescheduleConcurrency int    `json:"reschedule_concurrency,omitempty"`
}

// SenderConfig controls chunking and retries of outgoing reminders.
type SenderConfig struct {
	ChunkSize   int      `json:"chunk_size,omitempty"`
	MaxAttempts int      `json:"max_attempts,omitempty"`
	RetryDelays []string `json:"retry_delays,omitempty"`
}

// CommandsConfig tunes chat command handling.
//
// Defaults: workers 4, queue_size 256, timeout "30s", throttle 1/s with a
// burst of 5 per user. throttle_per_sec < 0 disables throttling.
type CommandsConfig struct {
	Workers        int     `json:"workers,omitempty"`
	QueueSize      int     `json:"queue_size,omitempty"`
	Timeout        string  `json:"timeout,omitempty"`
	ThrottlePerSec float64 `json:"throttle_per_sec,omitempty"`
	ThrottleBurst  int     `json:"throttle_burst,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9310"
	// Pprof mounts net/http/pprof under /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}
