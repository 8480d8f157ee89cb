package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrInvalid  = errors.New("storage: invalid record")
)

// DefaultTimeZone is used for users that never ran /tz.
const DefaultTimeZone = "Europe/Moscow"

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Reminder is the persisted definition of "when and what to tell whom".
// Any subset of RunAt, Cron and EventAt may be set; none set is a valid but
// inert reminder.
type Reminder struct {
	ID            string
	ChatID        int64
	ThreadID      *int
	Text          string
	FormatMode    string
	RunAt         string
	Cron          string
	TimeZone      string
	NoPreview     bool
	EventAt       string
	RemindOffsets string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Thread returns the thread id or 0.
func (r Reminder) Thread() int {
	if r.ThreadID == nil {
		return 0
	}
	return *r.ThreadID
}

// NewReminderID returns a 32 hex char id.
func NewReminderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type UserSettings struct {
	UserID    int64
	TimeZone  string
	UpdatedAt time.Time
}

type ChatSettings struct {
	ChatID          int64
	DefaultThreadID *int
	ControlThreadID *int
	UpdatedAt       time.Time
}

// Store is the persistence API used by the scheduling coordinator, the
// command router and the CLI.
type Store interface {
	CreateReminder(ctx context.Context, r *Reminder) error
	UpdateReminder(ctx context.Context, r *Reminder) error
	GetReminder(ctx context.Context, id string) (Reminder, error)
	ListReminders(ctx context.Context) ([]Reminder, error)
	ListOwned(ctx context.Context, chatID, userID int64, limit int) ([]Reminder, error)
	// FindOwned resolves an id or id prefix among the caller's reminders in a chat.
	FindOwned(ctx context.Context, chatID, userID int64, key string) (Reminder, error)
	DeleteReminder(ctx context.Context, id string) (bool, error)
	// OwnedIDs lists every reminder id the user created in a chat, unlimited.
	OwnedIDs(ctx context.Context, chatID, userID int64) ([]string, error)

	GetUserSettings(ctx context.Context, userID int64) (UserSettings, error)
	PutUserSettings(ctx context.Context, s UserSettings) error
	GetChatSettings(ctx context.Context, chatID int64) (ChatSettings, error)
	PutChatSettings(ctx context.Context, s ChatSettings) error

	AccessOptions(ctx context.Context) (AccessOptions, error)
	SetWhitelist(ctx context.Context, enabled bool) error
	// PutAccessRule creates or replaces the rule for (Target, TargetID).
	PutAccessRule(ctx context.Context, r AccessRule) error
	RevokeAccess(ctx context.Context, target AccessTarget, id int64) (int, error)
	ListAccessRules(ctx context.Context, limit int) ([]AccessRule, error)
	// IsAllowed evaluates the access rules for a user in a chat.
	IsAllowed(ctx context.Context, userID, chatID int64) (bool, error)

	Close() error
}
