package engine

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStopped   = errors.New("engine: stopped")
	ErrStopping  = errors.New("engine: stopping")
	ErrQueueFull = errors.New("engine: queue full")
)

// Config sizes the worker pool that executes trigger firings.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout applies when Task.Timeout is zero.
	DefaultTimeout time.Duration

	// HistorySize bounds the Stats.Recent ring.
	HistorySize int
}

// Task is one firing handed over by the scheduler.
type Task struct {
	ID         string
	Name       string
	ReminderID string
	Timeout    time.Duration
	Run        func(ctx context.Context) error
}

// TaskEvent is the payload of the task.* bus events and an entry of
// Stats.Recent.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	ReminderID string        `json:"reminder_id,omitempty"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type Stats struct {
	Workers  int
	Queued   int
	QueueCap int
	InFlight int
	Dropped  uint64
	Recent   []TaskEvent
}
