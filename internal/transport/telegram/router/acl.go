package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"remindbot/internal/storage"
	"remindbot/pkg/tgui"
)

const aclListLimit = 30

func (r *Router) aclCommands() []Command {
	super := Policy{RequiresSuperAdmin: true}
	superGroup := Policy{RequiresSuperAdmin: true, RequiresGroup: true}
	return []Command{
		{Name: "allowuser", Description: "Allow a user", Usage: "/allowuser <user_id|me>", Policy: super,
			Handle: r.userRule(storage.AccessAllow)},
		{Name: "denyuser", Description: "Deny a user", Usage: "/denyuser <user_id|me>", Policy: super,
			Handle: r.userRule(storage.AccessDeny)},
		{Name: "revokeuser", Description: "Remove the rule for a user", Usage: "/revokeuser <user_id|me>", Policy: super,
			Handle: r.handleRevokeUser},
		{Name: "allowchat", Description: "Allow this chat", Usage: "/allowchat", Policy: superGroup,
			Handle: r.chatRule(storage.AccessAllow)},
		{Name: "denychat", Description: "Deny this chat", Usage: "/denychat", Policy: superGroup,
			Handle: r.chatRule(storage.AccessDeny)},
		{Name: "revokechat", Description: "Remove the rule for this chat", Usage: "/revokechat", Policy: superGroup,
			Handle: r.handleRevokeChat},
		{Name: "whitelist", Description: "Turn the whitelist on or off", Usage: "/whitelist on|off", Policy: super,
			Handle: r.handleWhitelist},
		{Name: "acl", Description: "Show access rules", Usage: "/acl", Policy: super,
			Handle: r.handleACL},
	}
}

// parseUserTarget accepts a numeric id or "me".
func parseUserTarget(args string, self int64) (int64, bool) {
	arg := strings.TrimSpace(args)
	if f := strings.Fields(arg); len(f) > 0 {
		arg = f[0]
	}
	if strings.EqualFold(arg, "me") {
		return self, self != 0
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (r *Router) userRule(mode storage.AccessMode) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		id, ok := parseUserTarget(req.Args, req.Msg.FromID)
		if !ok {
			return r.usage(ctx, req, "/"+req.Command+" <user_id|me>")
		}
		rule := storage.AccessRule{Target: storage.TargetUser, TargetID: id, Mode: mode, Comment: "by " + strconv.FormatInt(req.Msg.FromID, 10)}
		if err := r.deps.Store.PutAccessRule(ctx, rule); err != nil {
			return err
		}
		r.reply(ctx, req, tgui.New().Plain().Line(fmt.Sprintf("%s user %d", mode, id)).Build())
		return nil
	}
}

func (r *Router) chatRule(mode storage.AccessMode) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		rule := storage.AccessRule{Target: storage.TargetChat, TargetID: req.Chat.ChatID, Mode: mode, Comment: "by " + strconv.FormatInt(req.Msg.FromID, 10)}
		if err := r.deps.Store.PutAccessRule(ctx, rule); err != nil {
			return err
		}
		r.reply(ctx, req, tgui.New().Plain().Line(fmt.Sprintf("%s chat %d", mode, req.Chat.ChatID)).Build())
		return nil
	}
}

func (r *Router) handleRevokeUser(ctx context.Context, req *Request) error {
	id, ok := parseUserTarget(req.Args, req.Msg.FromID)
	if !ok {
		return r.usage(ctx, req, "/revokeuser <user_id|me>")
	}
	n, err := r.deps.Store.RevokeAccess(ctx, storage.TargetUser, id)
	if err != nil {
		return err
	}
	r.reply(ctx, req, tgui.New().Plain().Line(fmt.Sprintf("Revoked rules for user %d (%d removed)", id, n)).Build())
	return nil
}

func (r *Router) handleRevokeChat(ctx context.Context, req *Request) error {
	n, err := r.deps.Store.RevokeAccess(ctx, storage.TargetChat, req.Chat.ChatID)
	if err != nil {
		return err
	}
	r.reply(ctx, req, tgui.New().Plain().Line(fmt.Sprintf("Revoked rules for chat %d (%d removed)", req.Chat.ChatID, n)).Build())
	return nil
}

func (r *Router) handleWhitelist(ctx context.Context, req *Request) error {
	var on bool
	switch strings.ToLower(strings.TrimSpace(req.Args)) {
	case "on", "1", "true":
		on = true
	case "off", "0", "false":
	default:
		return r.usage(ctx, req, "/whitelist on|off")
	}
	if err := r.deps.Store.SetWhitelist(ctx, on); err != nil {
		return err
	}
	r.reply(ctx, req, tgui.New().Plain().Line("Whitelist: "+onOff(on)).Build())
	return nil
}

func (r *Router) handleACL(ctx context.Context, req *Request) error {
	opts, err := r.deps.Store.AccessOptions(ctx)
	if err != nil {
		return err
	}
	rules, err := r.deps.Store.ListAccessRules(ctx, aclListLimit)
	if err != nil {
		return err
	}
	b := tgui.New().Plain().
		Line("Whitelist: " + onOff(opts.WhitelistEnabled)).
		Line(fmt.Sprintf("Rules (top %d):", aclListLimit))
	if len(rules) == 0 {
		b.Line("(none)")
	}
	for _, rule := range rules {
		b.Line(fmt.Sprintf("- %s %d: %s", rule.Target, rule.TargetID, rule.Mode))
	}
	r.reply(ctx, req, b.Build())
	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
