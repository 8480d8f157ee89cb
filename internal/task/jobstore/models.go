package jobstore

import (
	"encoding/json"
	"time"
)

// Job is a durable job definition: a named handler type that triggers point at.
type Job struct {
	Name      string    `gorm:"primaryKey;size:255"`
	Group     string    `gorm:"primaryKey;column:job_group;size:255"`
	Type      string    `gorm:"size:255;not null"`
	Durable   bool
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Job) TableName() string { return "scheduler_jobs" }

// Trigger fires a job once (FireAt) or on a cron schedule (Cron + TimeZone)
// with a flat data map. Revision is unique per inserted row, so a row that
// was replaced under the same key can be told apart.
type Trigger struct {
	Name       string     `gorm:"primaryKey;size:255"`
	Group      string     `gorm:"primaryKey;column:trigger_group;size:255"`
	JobName    string     `gorm:"index:ix_trigger_job;size:255;not null"`
	JobGroup   string     `gorm:"index:ix_trigger_job;size:255;not null"`
	ReminderID string     `gorm:"index;size:64"`
	Kind       string     `gorm:"size:32"`
	FireAt     *time.Time `gorm:"index"`
	Cron       string     `gorm:"size:255"`
	TimeZone   string     `gorm:"size:64"`
	Data       string     `gorm:"type:text"`
	Revision   string     `gorm:"size:36"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
}

func (Trigger) TableName() string { return "scheduler_triggers" }

// Key identifies a job or trigger.
type Key struct {
	Name  string
	Group string
}

func (t Trigger) Key() Key    { return Key{Name: t.Name, Group: t.Group} }
func (t Trigger) JobKey() Key { return Key{Name: t.JobName, Group: t.JobGroup} }

// DataMap decodes the stored job-data. Corrupt data yields an empty map.
func (t Trigger) DataMap() map[string]string {
	out := map[string]string{}
	if t.Data == "" {
		return out
	}
	_ = json.Unmarshal([]byte(t.Data), &out)
	return out
}

// SetData encodes m as the trigger's job-data.
func (t *Trigger) SetData(m map[string]string) error {
	if len(m) == 0 {
		t.Data = ""
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.Data = string(b)
	return nil
}

// Filter selects triggers. Empty fields match everything.
type Filter struct {
	GroupPrefix string
	Group       string
	ReminderID  string
	Job         *Key
}
