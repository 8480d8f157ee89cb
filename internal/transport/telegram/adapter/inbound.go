package adapter

import (
	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// onText receives every text message, commands included, since no command
// handlers are registered with telebot.
func (a *Adapter) onText(c tele.Context) error {
	if msg := toMessage(c.Message()); msg != nil {
		a.deliver(kit.Update{Kind: kit.UpdateMessage, Message: msg})
	}
	return nil
}

func (a *Adapter) deliver(up kit.Update) {
	in := a.inbox.Load()
	if in == nil {
		return
	}
	select {
	case in.ch <- up:
	default:
		a.dropped.Add(1)
	}
}

func toMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	msg := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ChatKind: kit.ChatKind(m.Chat.Type),
		ThreadID: m.ThreadID,
		Text:     m.Text,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return msg
}
