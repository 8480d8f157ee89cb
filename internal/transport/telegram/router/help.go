package router

import (
	"context"
	"sort"
	"strings"

	"remindbot/pkg/tgui"
)

func (r *Router) helpCommand() Command {
	return Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Handle:      r.handleHelp,
	}
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	r.reply(ctx, req, r.helpMessage(strings.TrimPrefix(strings.TrimSpace(req.Args), "/")))
	return nil
}

// helpMessage renders the command list, or the usage of one command.
func (r *Router) helpMessage(topic string) tgui.Message {
	if topic != "" {
		c, ok := r.lookup(strings.ToLower(topic))
		if !ok {
			return tgui.New().
				Title("❓", "Unknown command").
				RawLine("Try " + tgui.Code("/help").String() + " to list commands.").
				Build()
		}
		b := tgui.New().Title("", "/"+c.Name).Line(c.Description).KV("usage", c.Usage)
		if len(c.Aliases) > 0 {
			b.KV("aliases", "/"+strings.Join(c.Aliases, ", /"))
		}
		if note := policyNote(c.Policy); note != "" {
			b.KV("access", note)
		}
		return b.Build()
	}

	cmds := r.Commands()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	b := tgui.New().
		Title("📚", "Commands").
		RawLine("Type " + tgui.Code("/help <cmd>").String() + " for details.").
		Blank()
	for _, c := range cmds {
		line := tgui.Code("/"+c.Name).String() + " " + tgui.Esc(c.Description).String()
		if c.Policy.RequiresAdmin || c.Policy.RequiresSuperAdmin {
			line = "🔒 " + line
		}
		b.RawLine(line)
	}
	return b.Build()
}

func policyNote(p Policy) string {
	var parts []string
	if p.RequiresSuperAdmin {
		parts = append(parts, "superadmin")
	}
	if p.PrivateOnly {
		parts = append(parts, "private chat")
	}
	if p.RequiresGroup {
		parts = append(parts, "groups")
	}
	if p.RequiresThread {
		parts = append(parts, "inside a topic")
	}
	if p.RequiresAdmin {
		parts = append(parts, "chat admins")
	}
	return strings.Join(parts, ", ")
}
