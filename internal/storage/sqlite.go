package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Fixed width so that lexical order equals chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const reminderColumns = `id, chat_id, thread_id, text, format_mode, run_at, cron, time_zone, no_preview,
	event_at, remind_offsets, created_by, created_at, updated_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	log.Debug("reminder store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateReminder(ctx context.Context, r *Reminder) error {
	if r == nil || r.ChatID == 0 {
		return fmt.Errorf("%w: chat id is required", ErrInvalid)
	}
	now := s.now().UTC()
	if strings.TrimSpace(r.ID) == "" {
		r.ID = NewReminderID()
	}
	if strings.TrimSpace(r.TimeZone) == "" {
		r.TimeZone = DefaultTimeZone
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.ChatID, nullInt(r.ThreadID), r.Text, r.FormatMode, r.RunAt, r.Cron, r.TimeZone,
		boolInt(r.NoPreview), r.EventAt, r.RemindOffsets, r.CreatedBy,
		formatTS(r.CreatedAt), formatTS(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert reminder %s: %w", r.ID, err)
	}
	return nil
}

func (s *sqliteStore) UpdateReminder(ctx context.Context, r *Reminder) error {
	if r == nil || strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	r.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET chat_id=?, thread_id=?, text=?, format_mode=?, run_at=?, cron=?, time_zone=?,
		 no_preview=?, event_at=?, remind_offsets=?, updated_at=? WHERE id=?`,
		r.ChatID, nullInt(r.ThreadID), r.Text, r.FormatMode, r.RunAt, r.Cron, r.TimeZone,
		boolInt(r.NoPreview), r.EventAt, r.RemindOffsets, formatTS(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reminder %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY created_at, id`)
}

func (s *sqliteStore) ListOwned(ctx context.Context, chatID, userID int64, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE chat_id = ? AND created_by = ?
		 ORDER BY updated_at DESC, id LIMIT ?`,
		chatID, userID, limit,
	)
}

func (s *sqliteStore) FindOwned(ctx context.Context, chatID, userID int64, key string) (Reminder, error) {
	key = normalizeIDKey(key)
	if key == "" {
		return Reminder{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE chat_id = ? AND created_by = ? AND (id = ? OR substr(id, 1, ?) = ?)
		 ORDER BY id LIMIT 1`,
		chatID, userID, key, len(key), key,
	)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete reminder %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) OwnedIDs(ctx context.Context, chatID, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM reminders WHERE chat_id = ? AND created_by = ? ORDER BY id`, chatID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) GetUserSettings(ctx context.Context, userID int64) (UserSettings, error) {
	var tz, updated string
	err := s.db.QueryRowContext(ctx, `SELECT time_zone, updated_at FROM user_settings WHERE user_id = ?`, userID).Scan(&tz, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettings{}, ErrNotFound
	}
	if err != nil {
		return UserSettings{}, err
	}
	return UserSettings{UserID: userID, TimeZone: tz, UpdatedAt: parseTS(updated)}, nil
}

func (s *sqliteStore) PutUserSettings(ctx context.Context, us UserSettings) error {
	if us.UserID == 0 || strings.TrimSpace(us.TimeZone) == "" {
		return fmt.Errorf("%w: user id and time zone are required", ErrInvalid)
	}
	us.UpdatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, time_zone, updated_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET time_zone=excluded.time_zone, updated_at=excluded.updated_at`,
		us.UserID, us.TimeZone, formatTS(us.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) GetChatSettings(ctx context.Context, chatID int64) (ChatSettings, error) {
	var def, ctl sql.NullInt64
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT default_thread_id, control_thread_id, updated_at FROM chat_settings WHERE chat_id = ?`, chatID,
	).Scan(&def, &ctl, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSettings{}, ErrNotFound
	}
	if err != nil {
		return ChatSettings{}, err
	}
	return ChatSettings{ChatID: chatID, DefaultThreadID: intPtr(def), ControlThreadID: intPtr(ctl), UpdatedAt: parseTS(updated)}, nil
}

func (s *sqliteStore) PutChatSettings(ctx context.Context, cs ChatSettings) error {
	if cs.ChatID == 0 {
		return fmt.Errorf("%w: chat id is required", ErrInvalid)
	}
	cs.UpdatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings(chat_id, default_thread_id, control_thread_id, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET default_thread_id=excluded.default_thread_id,
		 control_thread_id=excluded.control_thread_id, updated_at=excluded.updated_at`,
		cs.ChatID, nullInt(cs.DefaultThreadID), nullInt(cs.ControlThreadID), formatTS(cs.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(sc scanner) (Reminder, error) {
	var (
		r                Reminder
		thread           sql.NullInt64
		noPreview        int
		created, updated string
	)
	err := sc.Scan(&r.ID, &r.ChatID, &thread, &r.Text, &r.FormatMode, &r.RunAt, &r.Cron, &r.TimeZone,
		&noPreview, &r.EventAt, &r.RemindOffsets, &r.CreatedBy, &created, &updated)
	if err != nil {
		return Reminder{}, err
	}
	r.ThreadID = intPtr(thread)
	r.NoPreview = noPreview != 0
	r.CreatedAt = parseTS(created)
	r.UpdatedAt = parseTS(updated)
	return r, nil
}

// normalizeIDKey lowercases and strips dashes so both uuid spellings match.
func normalizeIDKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.ReplaceAll(key, "-", "")
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
