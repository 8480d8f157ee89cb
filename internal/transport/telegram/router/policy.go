package router

import (
	"context"
	"errors"

	kit "remindbot/internal/transport"
)

// Policy declares who may run a command and where.
type Policy struct {
	RequiresGroup      bool
	RequiresThread     bool
	RequiresAdmin      bool
	RequiresSuperAdmin bool
	PrivateOnly        bool
}

// AdminChecker answers chat-admin lookups (the transport adapter caches them).
type AdminChecker interface {
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// AccessChecker evaluates the stored allow/deny rules.
type AccessChecker interface {
	IsAllowed(ctx context.Context, userID, chatID int64) (bool, error)
}

// Denial is returned by Authorize; Reason is safe to show to the user.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string { return "access denied: " + d.Reason }

var (
	errSuperAdminOnly = &Denial{Reason: "superadmin only."}
	errPrivateOnly    = &Denial{Reason: "this command is available only in private chat."}
	errGroupOnly      = &Denial{Reason: "this command works only in groups."}
	errThreadOnly     = &Denial{Reason: "run this inside a topic."}
	errAdminOnly      = &Denial{Reason: "chat admins only."}
	errNotListed      = &Denial{Reason: "you or this chat are not allowed to use the bot."}
)

// Admit applies the access rules to msg before any command policy. The
// superadmin is always admitted; a nil checker admits everyone.
func Admit(ctx context.Context, msg *kit.Message, superAdminID int64, acl AccessChecker) error {
	if acl == nil || (superAdminID != 0 && msg.FromID == superAdminID) {
		return nil
	}
	ok, err := acl.IsAllowed(ctx, msg.FromID, msg.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return errNotListed
	}
	return nil
}

// Authorize evaluates p for msg. Checks run in a fixed order: superadmin,
// private-only, group, thread, admin. The superadmin skips the admin check.
// A failed admin lookup is returned as is (not a *Denial).
func Authorize(ctx context.Context, p Policy, msg *kit.Message, superAdminID int64, admins AdminChecker) error {
	isSuper := superAdminID != 0 && msg.FromID == superAdminID

	if p.RequiresSuperAdmin && !isSuper {
		return errSuperAdminOnly
	}
	if p.PrivateOnly && !msg.IsPrivate() {
		return errPrivateOnly
	}
	if p.RequiresGroup && !msg.IsGroup() {
		return errGroupOnly
	}
	if p.RequiresThread && msg.ThreadID == 0 {
		return errThreadOnly
	}
	if p.RequiresAdmin && !isSuper {
		if admins == nil {
			return errAdminOnly
		}
		ok, err := admins.IsChatAdmin(ctx, msg.ChatID, msg.FromID)
		if err != nil {
			return err
		}
		if !ok {
			return errAdminOnly
		}
	}
	return nil
}

// IsDenial reports whether err came from a policy check.
func IsDenial(err error) bool {
	var d *Denial
	return errors.As(err, &d)
}
