package scheduler

import (
	"context"
	"fmt"
	"strings"

	"remindbot/internal/task/jobstore"
	logx "remindbot/pkg/logx"
)

func (s *Service) CheckExists(ctx context.Context, key JobKey) (bool, error) {
	return s.store.JobExists(ctx, jobstore.Key(key))
}

func (s *Service) AddJob(ctx context.Context, job JobDetail, replace bool) error {
	if strings.TrimSpace(job.Key.Name) == "" || strings.TrimSpace(job.Type) == "" {
		return fmt.Errorf("%w: job name and type are required", ErrInvalidTrigger)
	}
	return s.store.PutJob(ctx, &jobstore.Job{
		Name:    job.Key.Name,
		Group:   job.Key.Group,
		Type:    job.Type,
		Durable: job.Durable,
	}, replace)
}

// ScheduleJob persists t and arms it when the scheduler is running. The
// referenced job must exist and the trigger key must be unused.
func (s *Service) ScheduleJob(ctx context.Context, t Trigger) error {
	if strings.TrimSpace(t.Key.Name) == "" || strings.TrimSpace(t.Job.Name) == "" {
		return fmt.Errorf("%w: trigger and job keys are required", ErrInvalidTrigger)
	}
	oneShot := !t.FireAt.IsZero()
	recurring := strings.TrimSpace(t.Cron) != ""
	if oneShot == recurring {
		return fmt.Errorf("%w: %s needs exactly one of fire time or cron", ErrInvalidTrigger, t.Key)
	}
	if recurring {
		if _, err := ParseCron(t.Cron, t.TimeZone); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
	}

	rec := jobstore.Trigger{
		Name:       t.Key.Name,
		Group:      t.Key.Group,
		JobName:    t.Job.Name,
		JobGroup:   t.Job.Group,
		ReminderID: t.ReminderID,
		Kind:       t.Kind,
		Cron:       strings.TrimSpace(t.Cron),
		TimeZone:   strings.TrimSpace(t.TimeZone),
	}
	if oneShot {
		at := t.FireAt.UTC()
		rec.FireAt = &at
	}
	if err := rec.SetData(t.Data); err != nil {
		return fmt.Errorf("encode job data: %w", err)
	}
	if err := s.store.InsertTrigger(ctx, &rec); err != nil {
		return err
	}

	job, ok, err := s.store.GetJob(ctx, rec.JobKey())
	if err != nil || !ok {
		// Persisted; the next Start arms it.
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	if err := s.armLocked(rec, job.Type); err != nil {
		return err
	}
	s.log.Debug("trigger scheduled", logx.String("trigger", t.Key.String()), logx.String("reminder", t.ReminderID))
	return nil
}

// UnscheduleJob disarms and deletes a trigger. It reports whether the trigger
// existed.
func (s *Service) UnscheduleJob(ctx context.Context, key TriggerKey) (bool, error) {
	s.mu.Lock()
	s.disarmLocked(key)
	s.mu.Unlock()
	return s.store.DeleteTrigger(ctx, jobstore.Key(key))
}

func (s *Service) GetTriggerKeys(ctx context.Context, m GroupMatcher) ([]TriggerKey, error) {
	f, err := m.filter()
	if err != nil {
		return nil, err
	}
	keys, err := s.store.TriggerKeys(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]TriggerKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, TriggerKey(k))
	}
	return out, nil
}

// DeleteJob removes the job and all its triggers.
func (s *Service) DeleteJob(ctx context.Context, key JobKey) (bool, error) {
	jk := jobstore.Key(key)
	recs, err := s.store.Triggers(ctx, jobstore.Filter{Job: &jk})
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	for _, r := range recs {
		s.disarmLocked(TriggerKey(r.Key()))
	}
	s.mu.Unlock()
	return s.store.DeleteJob(ctx, jk)
}
