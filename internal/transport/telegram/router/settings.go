package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/storage"
	"remindbot/pkg/tgui"
)

func (r *Router) settingsCommands() []Command {
	return []Command{
		{
			Name:        "tz",
			Description: "Set your time zone",
			Usage:       "/tz <IANA zone>, e.g. /tz Europe/Berlin",
			Policy:      Policy{RequiresGroup: true, RequiresAdmin: true},
			Handle:      r.handleSetTZ,
		},
		{
			Name:        "mytz",
			Description: "Show your time zone",
			Usage:       "/mytz",
			Handle:      r.handleMyTZ,
		},
		{
			Name:        "settopic",
			Aliases:     []string{"setdefaulttopic"},
			Description: "Use this topic for new reminders in this chat",
			Usage:       "/settopic (inside a topic)",
			Policy:      Policy{RequiresGroup: true, RequiresThread: true, RequiresAdmin: true},
			Handle:      r.handleSetTopic,
		},
	}
}

func (r *Router) handleSetTZ(ctx context.Context, req *Request) error {
	name := strings.TrimSpace(req.Args)
	if name == "" {
		return r.usage(ctx, req, "/tz <IANA zone>")
	}
	loc, err := time.LoadLocation(name)
	if err != nil || name == "Local" {
		r.reply(ctx, req, tgui.New().Plain().Line("Bad timezone: "+name).Build())
		return nil
	}
	if err := r.deps.Store.PutUserSettings(ctx, storage.UserSettings{UserID: req.Msg.FromID, TimeZone: loc.String()}); err != nil {
		return err
	}
	r.reply(ctx, req, tgui.New().Plain().Line("Set TZ: "+loc.String()).Build())
	return nil
}

func (r *Router) handleMyTZ(ctx context.Context, req *Request) error {
	us, err := r.deps.Store.GetUserSettings(ctx, req.Msg.FromID)
	if errors.Is(err, storage.ErrNotFound) {
		r.reply(ctx, req, tgui.New().Plain().Line("Not set, using "+r.config().DefaultTimezone+". Use: /tz <IANA zone>").Build())
		return nil
	}
	if err != nil {
		return err
	}
	r.reply(ctx, req, tgui.New().Plain().Line("Your TZ: "+us.TimeZone).Build())
	return nil
}

func (r *Router) handleSetTopic(ctx context.Context, req *Request) error {
	cs, err := r.deps.Store.GetChatSettings(ctx, req.Chat.ChatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	thread := req.Chat.ThreadID
	cs.ChatID = req.Chat.ChatID
	cs.DefaultThreadID = &thread
	if err := r.deps.Store.PutChatSettings(ctx, cs); err != nil {
		return err
	}
	r.reply(ctx, req, tgui.New().Plain().Line("Default topic set: "+strconv.Itoa(thread)).Build())
	return nil
}
