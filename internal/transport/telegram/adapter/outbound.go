package adapter

import (
	"context"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// call waits for the shared API rate limiter. Every outgoing request goes
// through it.
func (a *Adapter) call(ctx context.Context) error { return a.limiter.Wait(ctx) }

func sentRef(to kit.ChatTarget, m *tele.Message) kit.MessageRef {
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.ID}
}

// SendText sends one message. Errors are classified with kit.Permanent and
// kit.Transient.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := a.call(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	m, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	})
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return sentRef(to, m), nil
}

func (a *Adapter) SendPoll(ctx context.Context, to kit.ChatTarget, question string, options []string, opt *kit.PollOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.PollOptions{}
	}
	if err := a.call(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	poll := &tele.Poll{
		Type:            tele.PollRegular,
		Question:        question,
		Anonymous:       opt.Anonymous,
		MultipleAnswers: opt.MultipleAnswers,
	}
	for _, o := range options {
		poll.Options = append(poll.Options, tele.PollOption{Text: o})
	}
	m, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, poll, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return sentRef(to, m), nil
}

// IsChatAdmin reports whether userID administers or created chatID. Answers
// are cached for AdminCacheTTL.
func (a *Adapter) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	key := adminKey{chatID: chatID, userID: userID}
	if ok, hit := a.admins.Get(key); hit {
		return ok, nil
	}
	if err := a.call(ctx); err != nil {
		return false, err
	}
	member, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, classify(err)
	}
	ok := member.Role == tele.Administrator || member.Role == tele.Creator
	a.admins.Add(key, ok)
	return ok, nil
}
