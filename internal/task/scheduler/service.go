package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/jobstore"
	logx "remindbot/pkg/logx"
)

const defaultMisfireThreshold = time.Hour

type armedTrigger struct {
	ver     uint64
	rec     jobstore.Trigger
	jobType string
	timer   *time.Timer
	entry   cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	bus    eventbus.Bus
	store  *jobstore.Store
	engine *engine.Service
	now    func() time.Time

	handlers map[string]Handler

	c       *cron.Cron
	running bool
	run     context.Context // canceled by Stop; bounds enqueue waits
	stopRun context.CancelFunc
	armed   map[TriggerKey]*armedTrigger
	ver     uint64
}

var _ Port = (*Service)(nil)

func New(cfg Config, store *jobstore.Store, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		store:    store,
		engine:   eng,
		now:      time.Now,
		handlers: map[string]Handler{},
		armed:    map[TriggerKey]*armedTrigger{},
	}
}

// RegisterHandler binds a job type to the function run when its triggers fire.
func (s *Service) RegisterHandler(jobType string, h Handler) {
	s.mu.Lock()
	s.handlers[jobType] = h
	s.mu.Unlock()
}

// Apply updates live settings. The default zone only affects triggers armed
// afterwards.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.loc = s.loadLocationLocked()
	s.mu.Unlock()
}

// Start arms every persisted trigger. One-shots that are already due fire now
// when within the misfire threshold and are dropped otherwise; cron triggers
// simply wait for their next occurrence. Firings wait for engine queue space
// until ctx ends or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	jobs, err := s.store.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	recs, err := s.store.Triggers(ctx, jobstore.Filter{})
	if err != nil {
		return fmt.Errorf("load triggers: %w", err)
	}
	types := make(map[jobstore.Key]string, len(jobs))
	for _, j := range jobs {
		types[jobstore.Key{Name: j.Name, Group: j.Group}] = j.Type
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	s.running = true
	s.run, s.stopRun = context.WithCancel(ctx)

	threshold := s.cfg.MisfireThreshold
	if threshold <= 0 {
		threshold = defaultMisfireThreshold
	}
	now := s.now()
	var fired, dropped int
	for _, rec := range recs {
		jobType, ok := types[rec.JobKey()]
		if !ok {
			s.log.Warn("trigger references missing job", logx.String("trigger", rec.Name), logx.String("job", rec.JobName))
			continue
		}
		if rec.FireAt != nil && !rec.FireAt.After(now) {
			late := now.Sub(*rec.FireAt)
			if late > threshold {
				dropped++
				s.publishTrigger(eventbus.TriggerMisfired, rec, late, "dropped")
				s.log.Warn("misfired trigger dropped", logx.String("trigger", rec.Name), logx.Duration("late", late))
				if _, err := s.store.DeleteTrigger(ctx, rec.Key()); err != nil {
					s.log.Warn("misfired trigger cleanup failed", logx.String("trigger", rec.Name), logx.Err(err))
				}
				continue
			}
			fired++
			s.publishTrigger(eventbus.TriggerMisfired, rec, late, "fire_now")
		}
		if err := s.armLocked(rec, jobType); err != nil {
			s.log.Warn("trigger arm failed", logx.String("trigger", rec.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started",
		logx.String("tz", s.loc.String()),
		logx.Int("triggers", len(s.armed)),
		logx.Int("misfired_fired", fired),
		logx.Int("misfired_dropped", dropped),
	)
	return nil
}

// Stop disarms timers and the cron runner. Persisted triggers stay and are
// re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	if s.stopRun != nil {
		s.stopRun()
		s.run, s.stopRun = nil, nil
	}
	for k, a := range s.armed {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(s.armed, k)
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Running: s.running}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	for k, a := range s.armed {
		info := ArmedInfo{Key: k, ReminderID: a.rec.ReminderID, Kind: a.rec.Kind, Cron: a.rec.Cron}
		if a.rec.FireAt != nil {
			info.Next = *a.rec.FireAt
		} else if s.c != nil {
			info.Next = s.c.Entry(a.entry).Next
		}
		snap.Armed = append(snap.Armed, info)
	}
	sort.Slice(snap.Armed, func(i, j int) bool {
		if !snap.Armed[i].Next.Equal(snap.Armed[j].Next) {
			return snap.Armed[i].Next.Before(snap.Armed[j].Next)
		}
		return snap.Armed[i].Key.String() < snap.Armed[j].Key.String()
	})
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

func (s *Service) publishTrigger(typ string, rec jobstore.Trigger, late time.Duration, action string) {
	if s.bus == nil {
		return
	}
	ev := TriggerEvent{Trigger: rec.Group + "/" + rec.Name, ReminderID: rec.ReminderID, Lateness: late, Action: action}
	if rec.FireAt != nil {
		ev.ScheduledAt = *rec.FireAt
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}
