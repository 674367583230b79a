package router

import (
	"context"
	"strings"
	"time"

	"schedbot/internal/config"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g. "schedule create".
	Route       string
	Aliases     []string // root-level aliases, e.g. ["create"]
	Description string
	Usage       string
	Access      Access

	PluginName string
	Timeout    time.Duration // 0 uses telegram.command_timeout
	Handle     HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who can press an inline button. The zero value is
// owner-only.
type CallbackAccess int

const (
	CallbackAccessOwnerOnly CallbackAccess = iota
	CallbackAccessEveryone
)

type CallbackRoute struct {
	Plugin      string
	Action      string
	Description string
	Access      CallbackAccess
	Timeout     time.Duration
	Handle      CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string // matched command path
	Command string   // route, or "cb:<plugin>:<action>"
	Args    []string // positional args after flags are removed
	Payload string   // callback payload

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter     kit.Adapter
	Config      *config.Config
	Logger      logx.Logger
	OwnerUserID []int64

	// head is the number of leading fields of the message text that name
	// the command (the /word plus matched subcommands).
	head int
}

// Message returns the triggering message, or nil for callbacks.
func (r *Request) Message() *kit.Message {
	if r == nil {
		return nil
	}
	return r.Update.Message
}

// Rest returns the raw message text after the command and n more
// whitespace-separated fields. Line breaks inside the remainder survive,
// which tokenized Args cannot offer.
func (r *Request) Rest(n int) string {
	m := r.Message()
	if m == nil {
		return ""
	}
	return skipFields(m.Text, r.head+n)
}

// Flag returns the value of --name or "".
func (r *Request) Flag(name string) (string, bool) {
	if r == nil || r.Flags == nil {
		return "", false
	}
	v, ok := r.Flags[strings.ToLower(name)]
	return v, ok
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}
