package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type AccessTarget int

const (
	TargetUser AccessTarget = 1
	TargetChat AccessTarget = 2
)

func (t AccessTarget) String() string {
	switch t {
	case TargetUser:
		return "User"
	case TargetChat:
		return "Chat"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

type AccessMode int

const (
	AccessAllow AccessMode = 1
	AccessDeny  AccessMode = 2
)

func (m AccessMode) String() string {
	switch m {
	case AccessAllow:
		return "Allow"
	case AccessDeny:
		return "Deny"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// AccessRule allows or denies one user or chat. There is at most one rule
// per (Target, TargetID).
type AccessRule struct {
	Target    AccessTarget
	TargetID  int64
	Mode      AccessMode
	Comment   string
	CreatedAt time.Time
}

// AccessOptions is the single global ACL switch row.
type AccessOptions struct {
	WhitelistEnabled bool
}

func (s *sqliteStore) AccessOptions(ctx context.Context) (AccessOptions, error) {
	var on int
	err := s.db.QueryRowContext(ctx, `SELECT whitelist_enabled FROM access_options WHERE id = 1`).Scan(&on)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessOptions{}, nil
	}
	if err != nil {
		return AccessOptions{}, err
	}
	return AccessOptions{WhitelistEnabled: on != 0}, nil
}

func (s *sqliteStore) SetWhitelist(ctx context.Context, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_options(id, whitelist_enabled) VALUES(1, ?)
		 ON CONFLICT(id) DO UPDATE SET whitelist_enabled=excluded.whitelist_enabled`,
		boolInt(enabled),
	)
	return err
}

func (s *sqliteStore) PutAccessRule(ctx context.Context, r AccessRule) error {
	if r.TargetID == 0 || (r.Target != TargetUser && r.Target != TargetChat) {
		return fmt.Errorf("%w: access rule needs a user or chat id", ErrInvalid)
	}
	if r.Mode != AccessAllow && r.Mode != AccessDeny {
		return fmt.Errorf("%w: access mode %d", ErrInvalid, int(r.Mode))
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_rules(target, target_id, mode, comment, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(target, target_id) DO UPDATE SET mode=excluded.mode, comment=excluded.comment`,
		int(r.Target), r.TargetID, int(r.Mode), r.Comment, formatTS(r.CreatedAt),
	)
	return err
}

func (s *sqliteStore) RevokeAccess(ctx context.Context, target AccessTarget, id int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_rules WHERE target = ? AND target_id = ?`, int(target), id)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) ListAccessRules(ctx context.Context, limit int) ([]AccessRule, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target, target_id, mode, comment, created_at FROM access_rules ORDER BY target, target_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccessRule
	for rows.Next() {
		var (
			r            AccessRule
			target, mode int
			created      string
		)
		if err := rows.Scan(&target, &r.TargetID, &mode, &r.Comment, &created); err != nil {
			return nil, err
		}
		r.Target, r.Mode, r.CreatedAt = AccessTarget(target), AccessMode(mode), parseTS(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsAllowed applies deny rules first (user, then chat). With the whitelist
// off everything else passes; with it on, the user or the chat needs an
// allow rule.
func (s *sqliteStore) IsAllowed(ctx context.Context, userID, chatID int64) (bool, error) {
	user, err := s.accessMode(ctx, TargetUser, userID)
	if err != nil {
		return false, err
	}
	chat, err := s.accessMode(ctx, TargetChat, chatID)
	if err != nil {
		return false, err
	}
	if user == AccessDeny || chat == AccessDeny {
		return false, nil
	}
	opts, err := s.AccessOptions(ctx)
	if err != nil {
		return false, err
	}
	if !opts.WhitelistEnabled {
		return true, nil
	}
	return user == AccessAllow || chat == AccessAllow, nil
}

func (s *sqliteStore) accessMode(ctx context.Context, target AccessTarget, id int64) (AccessMode, error) {
	if id == 0 {
		return 0, nil
	}
	var mode int
	err := s.db.QueryRowContext(ctx,
		`SELECT mode FROM access_rules WHERE target = ? AND target_id = ?`, int(target), id).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return AccessMode(mode), nil
}
