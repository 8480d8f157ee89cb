package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		permanent bool
		retry     time.Duration
	}{
		{"api 400", &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, true, 0},
		{"api 403", &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, true, 0},
		{"api 502", &tele.Error{Code: 502, Description: "Bad Gateway"}, false, 0},
		{"generic 400", errors.New("telegram: Bad Request: message thread not found (400)"), true, 0},
		{"generic 500", errors.New("telegram: Internal Server Error (500)"), false, 0},
		{"network", fmt.Errorf("post: %w", timeoutErr{}), false, 0},
		{"unknown", errors.New("connection reset by peer"), false, 0},
		{"canceled", context.Canceled, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.err)
			if kit.IsPermanent(got) != tt.permanent {
				t.Fatalf("IsPermanent(classify(%v))=%v want %v", tt.err, !tt.permanent, tt.permanent)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error lost its cause: %v", got)
			}
			if d, _ := kit.RetryAfter(got); d != tt.retry {
				t.Fatalf("RetryAfter=%v want %v", d, tt.retry)
			}
		})
	}
}

func TestClassifyFlood(t *testing.T) {
	t.Parallel()

	got := classify(tele.FloodError{RetryAfter: 12})
	if kit.IsPermanent(got) {
		t.Fatalf("flood control must be transient")
	}
	if d, ok := kit.RetryAfter(got); !ok || d != 12*time.Second {
		t.Fatalf("RetryAfter=%v,%v want 12s", d, ok)
	}
}

func TestMenuCommandsAndScope(t *testing.T) {
	t.Parallel()

	cmds := []kit.BotCommand{{Command: "remind", Description: "Create a reminder"}, {Command: ""}, {Command: "help"}}
	got := menuCommands(cmds)
	if len(got) != 2 || got[0].Text != "remind" || got[1].Description != "help" {
		t.Fatalf("commands=%+v", got)
	}

	many := make([]kit.BotCommand, 150)
	for i := range many {
		many[i] = kit.BotCommand{Command: fmt.Sprintf("c%d", i), Description: strings.Repeat("x", 300)}
	}
	got = menuCommands(many)
	if len(got) != maxMenuCommands || len(got[0].Description) != maxMenuDescription {
		t.Fatalf("limits not applied: %d commands, %d description bytes", len(got), len(got[0].Description))
	}

	if menuScope(kit.MenuScope{}) != nil || menuScope(kit.MenuScope{Kind: kit.ScopeDefault}) != nil {
		t.Fatalf("default scope must be omitted")
	}
	sc := menuScope(kit.MenuScope{Kind: kit.ScopeChat, ChatID: -100})
	b, _ := json.Marshal(sc)
	if !strings.Contains(string(b), `"type":"chat"`) || !strings.Contains(string(b), `"chat_id":-100`) {
		t.Fatalf("scope=%s", b)
	}
	if scopeKey(kit.MenuScope{Kind: "chat", ChatID: -100}) == scopeKey(kit.MenuScope{Kind: "chat", ChatID: -200}) {
		t.Fatalf("chat scopes must be keyed separately")
	}
	if menuHash(menuCommands(cmds)) == menuHash(menuCommands(cmds[:1])) {
		t.Fatalf("different lists must hash differently")
	}
}

func TestDeliverCountsDrops(t *testing.T) {
	t.Parallel()

	a := &Adapter{}
	a.deliver(kit.Update{Kind: kit.UpdateMessage})

	out := make(chan kit.Update, 1)
	a.inbox.Store(&inbox{ch: out})
	a.deliver(kit.Update{Kind: kit.UpdateMessage})
	a.deliver(kit.Update{Kind: kit.UpdateMessage})
	if len(out) != 1 || a.dropped.Load() != 1 {
		t.Fatalf("queued=%d dropped=%d", len(out), a.dropped.Load())
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()

	if toMessage(nil) != nil || toMessage(&tele.Message{}) != nil {
		t.Fatalf("messages without a chat must be ignored")
	}
	m := toMessage(&tele.Message{
		ID:       7,
		Text:     "/list",
		ThreadID: 3,
		Chat:     &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 42, Username: "ann"},
	})
	want := kit.Message{ID: 7, ChatID: -100, ChatKind: kit.ChatKind("supergroup"), ThreadID: 3, Text: "/list", FromID: 42, FromUsername: "ann"}
	if *m != want {
		t.Fatalf("message=%+v", *m)
	}
}
