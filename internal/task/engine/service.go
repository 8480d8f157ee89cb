// Package engine runs scheduled work on a bounded worker pool so that timer
// callbacks never block on delivery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 256
	defaultHistorySize = 200

	// queue-full warnings are logged at most this often
	dropWarnEvery = 5 * time.Second
)

var errWorkerExited = errors.New("worker exited")

type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu   sync.Mutex
	pool *pool

	inFlight atomic.Int32
	dropped  atomic.Uint64
	seq      atomic.Uint64
	lastWarn atomic.Int64

	histMu  sync.Mutex
	history []TaskEvent
}

// pool is one Start..Stop generation of workers.
type pool struct {
	queue chan queuedTask
	quit  chan struct{}
	sup   *rtsup.Supervisor
	done  chan struct{} // non-nil once Stop began
}

type queuedTask struct {
	task     Task
	queuedAt time.Time
	timeout  time.Duration
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Service{cfg: cfg, log: log, bus: bus}
}

// Start launches the workers. Calling it on a running engine does nothing.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return
	}
	p := &pool{
		queue: make(chan queuedTask, s.cfg.QueueSize),
		quit:  make(chan struct{}),
		sup:   rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "engine")))),
	}
	s.pool = p

	for i := range s.cfg.Workers {
		p.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.work(c, p)
			select {
			case <-p.quit:
				return nil
			default:
			}
			if c.Err() != nil {
				return nil
			}
			return errWorkerExited
		})
	}
	s.log.Info("engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop lets workers finish the task in hand and returns once they exit or
// ctx expires. Queued tasks are abandoned.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	p := s.pool
	if p == nil {
		s.mu.Unlock()
		return
	}
	first := p.done == nil
	if first {
		p.done = make(chan struct{})
		close(p.quit)
	}
	done := p.done
	s.mu.Unlock()

	if first {
		go func() {
			_ = p.sup.Wait(context.Background())
			s.mu.Lock()
			if s.pool == p {
				s.pool = nil
			}
			s.mu.Unlock()
			close(done)
		}()
	}

	select {
	case <-done:
		s.log.Info("engine stopped")
	case <-ctx.Done():
		p.sup.Cancel()
		s.log.Warn("engine stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue hands t to the pool without blocking.
func (s *Service) Enqueue(t Task) error {
	qt, p, err := s.prepare(t)
	if err != nil {
		return err
	}
	select {
	case p.queue <- qt:
		return nil
	default:
		s.drop(qt.queuedAt, qt.task, p.queue)
		return ErrQueueFull
	}
}

// EnqueueWait hands t to the pool, waiting for a free queue slot until ctx
// is done or the engine starts stopping.
func (s *Service) EnqueueWait(ctx context.Context, t Task) error {
	qt, p, err := s.prepare(t)
	if err != nil {
		return err
	}
	select {
	case p.queue <- qt:
		return nil
	default:
	}
	select {
	case p.queue <- qt:
		return nil
	case <-p.quit:
		return ErrStopping
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) prepare(t Task) (queuedTask, *pool, error) {
	if t.Run == nil {
		return queuedTask{}, nil, errors.New("engine: task has no Run")
	}
	if t.Name = strings.TrimSpace(t.Name); t.Name == "" {
		return queuedTask{}, nil, errors.New("engine: task has no Name")
	}
	now := time.Now()
	if t.ID == "" {
		t.ID = fmt.Sprintf("tsk-%x-%d", now.UnixNano(), s.seq.Add(1))
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	s.mu.Lock()
	p := s.pool
	stopping := p != nil && p.done != nil
	s.mu.Unlock()
	switch {
	case p == nil:
		return queuedTask{}, nil, ErrStopped
	case stopping:
		return queuedTask{}, nil, ErrStopping
	}
	return queuedTask{task: t, queuedAt: now, timeout: timeout}, p, nil
}

func (s *Service) Stats() Stats {
	st := Stats{
		Workers:  s.cfg.Workers,
		QueueCap: s.cfg.QueueSize,
		InFlight: int(s.inFlight.Load()),
		Dropped:  s.dropped.Load(),
	}
	s.mu.Lock()
	if s.pool != nil {
		st.Queued = len(s.pool.queue)
	}
	s.mu.Unlock()

	s.histMu.Lock()
	st.Recent = append([]TaskEvent(nil), s.history...)
	s.histMu.Unlock()
	return st
}

func (s *Service) remember(ev TaskEvent) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = append(s.history, ev)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
	}
}

func (s *Service) drop(now time.Time, t Task, q chan queuedTask) {
	n := s.dropped.Add(1)
	s.publish(eventbus.TaskDropped, TaskEvent{ID: t.ID, Name: t.Name, ReminderID: t.ReminderID, Started: now, Error: ErrQueueFull.Error()})

	prev := s.lastWarn.Load()
	if prev != 0 && now.UnixNano()-prev < int64(dropWarnEvery) {
		return
	}
	if s.lastWarn.CompareAndSwap(prev, now.UnixNano()) {
		s.log.Warn("task dropped: queue full",
			logx.String("task", t.Name),
			logx.String("reminder", t.ReminderID),
			logx.Int("queue_cap", cap(q)),
			logx.Uint64("dropped", n),
		)
	}
}
