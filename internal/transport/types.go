package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSuperGroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ChatKind     ChatKind
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

func (m *Message) IsGroup() bool {
	return m != nil && (m.ChatKind == ChatGroup || m.ChatKind == ChatSuperGroup)
}

func (m *Message) IsPrivate() bool {
	return m != nil && m.ChatKind == ChatPrivate
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Parse modes understood by the messenger.
const (
	ParseModeNone       = ""
	ParseModeHTML       = "HTML"
	ParseModeMarkdown   = "Markdown"
	ParseModeMarkdownV2 = "MarkdownV2"
)

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type PollOptions struct {
	Anonymous       bool
	MultipleAnswers bool
}

// Messenger delivers one message (or poll) per call. Callers are responsible
// for splitting text to the platform limit.
type Messenger interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPoll(ctx context.Context, to ChatTarget, question string, options []string, opt *PollOptions) (MessageRef, error)
}

type Adapter interface {
	Messenger

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// IsChatAdmin reports whether userID administers chatID.
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// Menu scope kinds. The chat-bound kinds need MenuScope.ChatID.
const (
	ScopeDefault            = "default"
	ScopeAllPrivateChats    = "all_private_chats"
	ScopeAllGroupChats      = "all_group_chats"
	ScopeChat               = "chat"
	ScopeChatAdministrators = "chat_administrators"
)

// MenuScope selects which users see a command menu.
type MenuScope struct {
	Kind   string
	ChatID int64
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, scope MenuScope, cmds []BotCommand) error
}
