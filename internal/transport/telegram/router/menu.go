package router

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const defaultMenuCacheSize = 4096

// MenuCache remembers the chats whose per-chat menus were published since
// start. It is not persisted: a restart republishes on first use.
type MenuCache struct {
	chats *lru.Cache[int64, struct{}]
}

func NewMenuCache(size int) *MenuCache {
	if size <= 0 {
		size = defaultMenuCacheSize
	}
	c, _ := lru.New[int64, struct{}](size)
	return &MenuCache{chats: c}
}

// MarkPublished reports whether chatID was newly added.
func (m *MenuCache) MarkPublished(chatID int64) bool {
	found, _ := m.chats.ContainsOrAdd(chatID, struct{}{})
	return !found
}

// Forget drops chatID so the next message republishes its menus.
func (m *MenuCache) Forget(chatID int64) {
	m.chats.Remove(chatID)
}

func (m *MenuCache) Len() int { return m.chats.Len() }

// sanitizeTelegramCommand converts an arbitrary name into a Telegram-safe bot command name.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if r == '_' || r == '-' || unicode.IsSpace(r) || r == '/' {
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	// Telegram clients generally expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

// menuBuckets splits commands by audience:
//   - private: private-only commands
//   - everyone: group commands without admin or superadmin requirements
//   - admins: group commands without the superadmin requirement
type menuBuckets struct {
	private  []kit.BotCommand
	everyone []kit.BotCommand
	admins   []kit.BotCommand
}

func buildMenuBuckets(cmds []Command) menuBuckets {
	var b menuBuckets
	seen := map[string]map[string]bool{"p": {}, "e": {}, "a": {}}
	add := func(dst *[]kit.BotCommand, bucket string, c Command) {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[bucket][name] {
			return
		}
		seen[bucket][name] = true
		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = name
		}
		*dst = append(*dst, kit.BotCommand{Command: name, Description: desc})
	}
	for _, c := range cmds {
		p := c.Policy
		if p.PrivateOnly {
			add(&b.private, "p", c)
			continue
		}
		if !p.RequiresGroup || p.RequiresSuperAdmin {
			continue
		}
		if !p.RequiresAdmin {
			add(&b.everyone, "e", c)
		}
		add(&b.admins, "a", c)
	}
	for _, l := range [][]kit.BotCommand{b.private, b.everyone, b.admins} {
		sort.SliceStable(l, func(i, j int) bool { return l[i].Command < l[j].Command })
	}
	return b
}

func (r *Router) publishGlobalMenus(ctx context.Context) {
	if r.deps.Menu == nil {
		return
	}
	b := buildMenuBuckets(r.Commands())
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if len(b.private) > 0 {
		if err := r.deps.Menu.UpdateMenuCommands(ctx, kit.MenuScope{Kind: kit.ScopeAllPrivateChats}, b.private); err != nil {
			r.log.Warn("menu publish failed", logx.String("scope", kit.ScopeAllPrivateChats), logx.Err(err))
		}
	}
	if err := r.deps.Menu.UpdateMenuCommands(ctx, kit.MenuScope{Kind: kit.ScopeAllGroupChats}, b.everyone); err != nil {
		r.log.Warn("menu publish failed", logx.String("scope", kit.ScopeAllGroupChats), logx.Err(err))
	}
}

// ensureChatMenus publishes the per-chat menus once per chat (per process).
func (r *Router) ensureChatMenus(chatID int64) {
	if r.deps.Menu == nil || !r.menus.MarkPublished(chatID) {
		return
	}
	r.runMu.Lock()
	sup := r.sup
	r.runMu.Unlock()
	if sup == nil {
		return
	}
	b := buildMenuBuckets(r.Commands())
	sup.Go0("telegram.menu.chat", func(c context.Context) {
		cctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		scopes := []struct {
			kind string
			cmds []kit.BotCommand
		}{
			{kit.ScopeChat, b.everyone},
			{kit.ScopeChatAdministrators, b.admins},
		}
		for _, s := range scopes {
			if err := r.deps.Menu.UpdateMenuCommands(cctx, kit.MenuScope{Kind: s.kind, ChatID: chatID}, s.cmds); err != nil {
				r.log.Warn("menu publish failed", logx.String("scope", s.kind), logx.Int64("chat_id", chatID), logx.Err(err))
				// Retry on the next message from this chat.
				r.menus.Forget(chatID)
				return
			}
		}
		r.log.Debug("chat menus published", logx.Int64("chat_id", chatID))
	})
}
