package tgui

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "schedbot/internal/transport"
)

// Message is rendered text plus the options it must be sent with.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Edit replaces the message at ref.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder assembles an HTML message line by line. Previews are disabled.
type Builder struct {
	rm    *tele.ReplyMarkup
	lines []string
}

func New() *Builder { return &Builder{} }

// Inline attaches a keyboard; nil or empty keyboards are dropped.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil || kb.Len() == 0 {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Title adds a bold line, optionally led by an emoji.
func (b *Builder) Title(emoji, title string) *Builder {
	t := B(strings.TrimSpace(title))
	if e := strings.TrimSpace(emoji); e != "" {
		t = Esc(e) + " " + t
	}
	b.lines = append(b.lines, t.String())
	return b
}

func (b *Builder) Section(title string) *Builder {
	b.lines = append(b.lines, B(strings.TrimSpace(title)).String())
	return b
}

// Line adds escaped text.
func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HTML appends pre-rendered HTML.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// KV adds "• <b>key</b>: value". An empty value drops the colon.
func (b *Builder) KV(key, value string) *Builder {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" {
		return b
	}
	line := "• " + B(key).String()
	if value != "" {
		line += ": " + Esc(value).String()
	}
	b.lines = append(b.lines, line)
	return b
}

// Quote adds s as a blockquote, keeping its line breaks.
func (b *Builder) Quote(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		return b
	}
	b.lines = append(b.lines, Quote(s).String())
	return b
}

func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}
