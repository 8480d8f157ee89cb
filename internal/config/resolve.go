package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvBotToken = "BOT_TOKEN"

	DefaultTimezone    = "Europe/Moscow"
	DefaultMetricsAddr = "127.0.0.1:9310"
)

// ParseDuration reads a Go duration string found at field. Blank and zero
// values yield def; negative values are rejected.
func ParseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", field, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// applyEnv fills settings that may come from the environment.
func applyEnv(cfg *Config) {
	if tok := strings.TrimSpace(os.Getenv(EnvBotToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
}

// Scheduler is SchedulerConfig with defaults applied and durations parsed.
type Scheduler struct {
	Timezone              string
	Workers               int
	QueueSize             int
	MisfireThreshold      time.Duration
	TaskTimeout           time.Duration
	RescheduleConcurrency int
}

func (c SchedulerConfig) Resolve() (Scheduler, error) {
	out := Scheduler{
		Timezone:              strings.TrimSpace(c.Timezone),
		Workers:               c.Workers,
		QueueSize:             c.QueueSize,
		RescheduleConcurrency: c.RescheduleConcurrency,
	}
	if out.Timezone == "" {
		out.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(out.Timezone); err != nil {
		return out, fmt.Errorf("scheduler.timezone: %w", err)
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.RescheduleConcurrency <= 0 {
		out.RescheduleConcurrency = 8
	}
	var err error
	if out.MisfireThreshold, err = ParseDuration("scheduler.misfire_threshold", c.MisfireThreshold, time.Hour); err != nil {
		return out, err
	}
	if out.TaskTimeout, err = ParseDuration("scheduler.task_timeout", c.TaskTimeout, 2*time.Minute); err != nil {
		return out, err
	}
	return out, nil
}

// Sender is SenderConfig with durations parsed. Zero values mean "use the
// sender's defaults".
type Sender struct {
	ChunkSize   int
	MaxAttempts int
	RetryDelays []time.Duration
}

func (c SenderConfig) Resolve() (Sender, error) {
	out := Sender{ChunkSize: c.ChunkSize, MaxAttempts: c.MaxAttempts}
	if c.ChunkSize > 4096 {
		return out, fmt.Errorf("sender.chunk_size: %d exceeds the 4096 message limit", c.ChunkSize)
	}
	for i, raw := range c.RetryDelays {
		d, err := ParseDuration(fmt.Sprintf("sender.retry_delays[%d]", i), raw, 0)
		if err != nil {
			return out, err
		}
		out.RetryDelays = append(out.RetryDelays, d)
	}
	return out, nil
}

// Commands is CommandsConfig with defaults applied.
type Commands struct {
	Workers        int
	QueueSize      int
	Timeout        time.Duration
	ThrottlePerSec float64
	ThrottleBurst  int
}

func (c CommandsConfig) Resolve() (Commands, error) {
	out := Commands{
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		ThrottlePerSec: c.ThrottlePerSec,
		ThrottleBurst:  c.ThrottleBurst,
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	switch {
	case out.ThrottlePerSec < 0:
		out.ThrottlePerSec = 0
	case out.ThrottlePerSec == 0:
		out.ThrottlePerSec = 1
	}
	if out.ThrottleBurst <= 0 {
		out.ThrottleBurst = 5
	}
	var err error
	if out.Timeout, err = ParseDuration("commands.timeout", c.Timeout, 30*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

// Validate checks a parsed config for problems that would only surface later
// at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token: empty (set it or %s)", EnvBotToken))
	}
	if _, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("telegram.rate_per_sec: must be >= 0"))
	}
	if _, err := ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Scheduler.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Sender.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Commands.Resolve(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
