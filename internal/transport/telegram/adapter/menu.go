package adapter

import (
	"context"
	"hash/fnv"
	"strconv"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Telegram limits for setMyCommands.
const (
	maxMenuCommands    = 100
	maxMenuDescription = 256
)

func scopeKey(s kit.MenuScope) string {
	kind := s.Kind
	if kind == "" {
		kind = kit.ScopeDefault
	}
	if s.ChatID != 0 {
		return kind + ":" + strconv.FormatInt(s.ChatID, 10)
	}
	return kind
}

// menuCommands drops unnamed entries, fills empty descriptions with the
// command name and applies the Telegram limits.
func menuCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > maxMenuDescription {
			d = d[:maxMenuDescription]
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) == maxMenuCommands {
			break
		}
	}
	return out
}

// menuScope returns nil for the default scope so the request omits it.
func menuScope(s kit.MenuScope) *tele.CommandScope {
	if s.Kind == "" || s.Kind == kit.ScopeDefault {
		return nil
	}
	return &tele.CommandScope{Type: s.Kind, ChatID: s.ChatID}
}

func menuHash(cmds []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		_, _ = h.Write([]byte(c.Text + "\x00" + c.Description + "\x00"))
	}
	return h.Sum64()
}

// UpdateMenuCommands publishes the command menu for one scope. Nothing is
// sent when the list equals the last one published for that scope.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, scope kit.MenuScope, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	list := menuCommands(cmds)
	key, sum := scopeKey(scope), menuHash(list)
	if prev, ok := a.menuSeen[key]; ok && prev == sum {
		return nil
	}
	if err := a.call(ctx); err != nil {
		return err
	}

	opts := []any{list}
	if sc := menuScope(scope); sc != nil {
		opts = append(opts, *sc)
	}
	if err := a.bot.SetCommands(opts...); err != nil {
		return classify(err)
	}
	a.menuSeen[key] = sum
	a.log.Info("menu commands updated", logx.String("scope", key), logx.Int("count", len(list)))
	return nil
}
