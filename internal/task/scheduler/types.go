package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/task/jobstore"
)

var (
	ErrJobExists      = jobstore.ErrJobExists
	ErrJobNotFound    = jobstore.ErrJobNotFound
	ErrTriggerExists  = jobstore.ErrTriggerExists
	ErrInvalidTrigger = errors.New("scheduler: invalid trigger")
	ErrInvalidMatcher = errors.New("scheduler: invalid matcher")
)

// Config controls the scheduler (trigger) service.
type Config struct {
	Timezone string // IANA TZ for cron triggers that carry none

	// MisfireThreshold bounds how late a persisted one-shot may be on start
	// and still fire. Older ones are dropped.
	MisfireThreshold time.Duration

	// TaskTimeout bounds one handler run; 0 uses the engine default.
	TaskTimeout time.Duration
}

type JobKey struct {
	Name  string
	Group string
}

type TriggerKey struct {
	Name  string
	Group string
}

func (k TriggerKey) String() string { return k.Group + "/" + k.Name }

// JobDetail defines a job: Type selects the handler registered with
// RegisterHandler. Durable jobs outlive their last trigger.
type JobDetail struct {
	Key     JobKey
	Type    string
	Durable bool
}

// Trigger fires Job once at FireAt, or repeatedly on Cron in TimeZone.
type Trigger struct {
	Key        TriggerKey
	Job        JobKey
	ReminderID string
	Kind       string
	FireAt     time.Time
	Cron       string
	TimeZone   string
	Data       map[string]string
}

type matchKind int

const (
	matchGroupEquals matchKind = iota
	matchGroupPrefix
	matchReminder
)

// GroupMatcher selects triggers for GetTriggerKeys.
type GroupMatcher struct {
	kind  matchKind
	value string
}

func GroupEquals(group string) GroupMatcher { return GroupMatcher{kind: matchGroupEquals, value: group} }

func GroupStartsWith(prefix string) GroupMatcher {
	return GroupMatcher{kind: matchGroupPrefix, value: prefix}
}

// ReminderEquals matches the triggers indexed under one reminder id, whatever
// their group.
func ReminderEquals(id string) GroupMatcher { return GroupMatcher{kind: matchReminder, value: id} }

// filter maps m to a store filter. A blank reminder id is refused, since an
// empty store filter matches every trigger.
func (m GroupMatcher) filter() (jobstore.Filter, error) {
	switch m.kind {
	case matchGroupPrefix:
		return jobstore.Filter{GroupPrefix: m.value}, nil
	case matchReminder:
		if strings.TrimSpace(m.value) == "" {
			return jobstore.Filter{}, fmt.Errorf("%w: empty reminder id", ErrInvalidMatcher)
		}
		return jobstore.Filter{ReminderID: m.value}, nil
	default:
		return jobstore.Filter{Group: m.value}, nil
	}
}

// Port is the scheduler surface the reminder coordinator depends on.
type Port interface {
	CheckExists(ctx context.Context, key JobKey) (bool, error)
	AddJob(ctx context.Context, job JobDetail, replace bool) error
	ScheduleJob(ctx context.Context, t Trigger) error
	UnscheduleJob(ctx context.Context, key TriggerKey) (bool, error)
	GetTriggerKeys(ctx context.Context, m GroupMatcher) ([]TriggerKey, error)
	DeleteJob(ctx context.Context, key JobKey) (bool, error)
}

// Firing is what a handler receives when a trigger fires.
type Firing struct {
	Trigger     TriggerKey
	Job         JobKey
	ReminderID  string
	ScheduledAt time.Time
	FiredAt     time.Time
	Misfired    bool
	Data        map[string]string
}

type Handler func(ctx context.Context, f Firing) error

// TriggerEvent is published on the bus for trigger.fired / trigger.misfired.
type TriggerEvent struct {
	Trigger     string        `json:"trigger"`
	ReminderID  string        `json:"reminder_id,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Lateness    time.Duration `json:"lateness"`
	Action      string        `json:"action,omitempty"`
}

type ArmedInfo struct {
	Key        TriggerKey
	ReminderID string
	Kind       string
	Next       time.Time
	Cron       string
}

type Snapshot struct {
	Running  bool
	Timezone string
	Armed    []ArmedInfo
}
