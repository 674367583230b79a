package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string // text, or the caption when a document is attached
	IsGroup      bool

	Document *Document
	ReplyTo  *Message // only one level deep
}

// DisplayName prefers @username and falls back to the first name.
func (m *Message) DisplayName() string {
	if m == nil {
		return ""
	}
	if m.FromUsername != "" {
		return "@" + m.FromUsername
	}
	return m.FromName
}

// Document is an attached file as announced by the platform. The bytes are
// fetched on demand with Adapter.DownloadFile.
type Document struct {
	FileID   string
	FileName string
	MIME     string
	Size     int64
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
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

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Upload is an outgoing file.
type Upload struct {
	FileName string
	MIME     string
	Data     []byte
	Caption  string
}

// ChatType mirrors the Telegram chat kinds we care about.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Chat is the platform's view of a chat the bot can see.
type Chat struct {
	ID           int64
	Type         ChatType
	Title        string
	Username     string
	LinkedChatID int64 // channel <-> discussion group link (0 if none)
}

// Name is a human label for the chat.
func (c Chat) Name() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Username != "" {
		return "@" + c.Username
	}
	return ""
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	SendDocument(ctx context.Context, to ChatTarget, doc Upload) (MessageRef, error)
	// DownloadFile fetches at most limit bytes; larger files are rejected.
	DownloadFile(ctx context.Context, fileID string, limit int64) ([]byte, error)
	ResolveChat(ctx context.Context, chatID int64) (Chat, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
