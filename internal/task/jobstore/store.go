package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrJobExists     = errors.New("jobstore: job already exists")
	ErrJobNotFound   = errors.New("jobstore: job not found")
	ErrTriggerExists = errors.New("jobstore: trigger already exists")
)

// Store is the GORM-backed job/trigger store.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the SQLite database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("jobstore path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open jobstore %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate jobstore: %w", err)
	}
	return s, nil
}

// New wraps an existing connection. Call Migrate before use.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the necessary tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Job{}, &Trigger{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) JobExists(ctx context.Context, k Key) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Job{}).
		Where("name = ? AND job_group = ?", k.Name, k.Group).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) GetJob(ctx context.Context, k Key) (Job, bool, error) {
	var j Job
	err := s.db.WithContext(ctx).Where("name = ? AND job_group = ?", k.Name, k.Group).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Job{}, false, nil
	}
	return j, err == nil, err
}

// Jobs lists every job definition.
func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	var out []Job
	err := s.db.WithContext(ctx).Order("job_group, name").Find(&out).Error
	return out, err
}

// PutJob stores a job definition. With replace=false an existing definition
// yields ErrJobExists.
func (s *Store) PutJob(ctx context.Context, job *Job, replace bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Job
		err := tx.Where("name = ? AND job_group = ?", job.Name, job.Group).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(job).Error
		case err != nil:
			return err
		case !replace:
			return ErrJobExists
		}
		return tx.Model(&existing).Updates(map[string]any{"type": job.Type, "durable": job.Durable}).Error
	})
}

// DeleteJob removes a job definition and every trigger pointing at it.
func (s *Store) DeleteJob(ctx context.Context, k Key) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_name = ? AND job_group = ?", k.Name, k.Group).Delete(&Trigger{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ? AND job_group = ?", k.Name, k.Group).Delete(&Job{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}

// InsertTrigger stores a new trigger. The referenced job must exist and the
// trigger key must be free. A blank Revision is filled in.
func (s *Store) InsertTrigger(ctx context.Context, t *Trigger) error {
	if t.Revision == "" {
		t.Revision = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Job{}).Where("name = ? AND job_group = ?", t.JobName, t.JobGroup).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%s", ErrJobNotFound, t.JobGroup, t.JobName)
		}
		if err := tx.Model(&Trigger{}).Where("name = ? AND trigger_group = ?", t.Name, t.Group).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s/%s", ErrTriggerExists, t.Group, t.Name)
		}
		return tx.Create(t).Error
	})
}

func (s *Store) DeleteTrigger(ctx context.Context, k Key) (bool, error) {
	res := s.db.WithContext(ctx).Where("name = ? AND trigger_group = ?", k.Name, k.Group).Delete(&Trigger{})
	return res.RowsAffected > 0, res.Error
}

// DeleteTriggerRevision deletes k only while it still holds revision rev.
func (s *Store) DeleteTriggerRevision(ctx context.Context, k Key, rev string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("name = ? AND trigger_group = ? AND revision = ?", k.Name, k.Group, rev).
		Delete(&Trigger{})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) GetTrigger(ctx context.Context, k Key) (Trigger, bool, error) {
	var t Trigger
	err := s.db.WithContext(ctx).Where("name = ? AND trigger_group = ?", k.Name, k.Group).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Trigger{}, false, nil
	}
	return t, err == nil, err
}

// Triggers lists triggers matching f ordered by key.
func (s *Store) Triggers(ctx context.Context, f Filter) ([]Trigger, error) {
	var out []Trigger
	err := s.scoped(ctx, f).Order("trigger_group, name").Find(&out).Error
	return out, err
}

// TriggerKeys is Triggers without the payload.
func (s *Store) TriggerKeys(ctx context.Context, f Filter) ([]Key, error) {
	var rows []Trigger
	err := s.scoped(ctx, f).Select("name", "trigger_group").Order("trigger_group, name").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.Key())
	}
	return keys, nil
}

func (s *Store) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Trigger{})
	if f.Group != "" {
		q = q.Where("trigger_group = ?", f.Group)
	}
	if f.GroupPrefix != "" {
		q = q.Where(`trigger_group LIKE ? ESCAPE '\'`, escapeLike(f.GroupPrefix)+"%")
	}
	if f.ReminderID != "" {
		q = q.Where("reminder_id = ?", f.ReminderID)
	}
	if f.Job != nil {
		q = q.Where("job_name = ? AND job_group = ?", f.Job.Name, f.Job.Group)
	}
	return q
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
