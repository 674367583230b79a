package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "schedbot/internal/transport"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("split(short) = %q", got)
	}

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(long, 8, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("split on newline = %q", got)
	}

	html := "abcd<b>bold</b>"
	got = splitTelegramText(html, 6, "HTML")
	if got[0] != "abcd" {
		t.Fatalf("split inside tag: first chunk = %q", got[0])
	}
	if strings.Join(got, "") != html {
		t.Fatalf("chunks %q lost text", got)
	}

	runes := strings.Repeat("é", 9)
	for _, c := range splitTelegramText(runes, 4, "") {
		if n := len([]rune(c)); n > 4 {
			t.Fatalf("chunk %q has %d runes, want <= 4", c, n)
		}
	}
}

func TestConvertMessageDocumentAndReply(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:      5,
		Chat:    &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:  &tele.User{ID: 42, Username: "alice", FirstName: "Alice"},
		Caption: "/schedule import overwrite",
		Document: &tele.Document{
			File:     tele.File{FileID: "f1"},
			FileName: "s.json",
			MIME:     "application/json",
		},
		ReplyTo: &tele.Message{ID: 4, Chat: &tele.Chat{ID: -100}, Text: "earlier",
			ReplyTo: &tele.Message{ID: 3}},
	}
	got := convertMessage(m, true)
	if got.Text != "/schedule import overwrite" || !got.IsGroup || got.FromID != 42 {
		t.Fatalf("message = %+v", got)
	}
	if got.Document == nil || got.Document.FileID != "f1" || got.Document.FileName != "s.json" {
		t.Fatalf("document = %+v", got.Document)
	}
	if got.ReplyTo == nil || got.ReplyTo.Text != "earlier" || got.ReplyTo.ReplyTo != nil {
		t.Fatalf("reply = %+v", got.ReplyTo)
	}
	if got.DisplayName() != "@alice" {
		t.Fatalf("DisplayName = %q", got.DisplayName())
	}
}

func TestConvertChat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   tele.Chat
		want kit.ChatType
	}{
		{tele.Chat{ID: 1, Type: tele.ChatPrivate, FirstName: "Bob"}, kit.ChatPrivate},
		{tele.Chat{ID: -2, Type: tele.ChatGroup}, kit.ChatGroup},
		{tele.Chat{ID: -3, Type: tele.ChatSuperGroup}, kit.ChatSupergroup},
		{tele.Chat{ID: -4, Type: tele.ChatChannelPrivate, LinkedChatID: -3}, kit.ChatChannel},
	}
	for _, tt := range tests {
		got := convertChat(&tt.in)
		if got.Type != tt.want || got.ID != tt.in.ID || got.LinkedChatID != tt.in.LinkedChatID {
			t.Fatalf("convertChat(%+v) = %+v, want type %v", tt.in, got, tt.want)
		}
	}
	if got := convertChat(&tele.Chat{Type: tele.ChatPrivate, FirstName: "Bob"}); got.Name() != "Bob" {
		t.Fatalf("private Name = %q, want Bob", got.Name())
	}
}

func TestMenuCommandsTrims(t *testing.T) {
	t.Parallel()
	in := []kit.BotCommand{{Command: ""}, {Command: "schedule"}, {Command: "help", Description: strings.Repeat("x", 300)}}
	got := menuCommands(in)
	if len(got) != 2 || got[0].Description != "schedule" || len([]rune(got[1].Description)) != maxMenuDescLength {
		t.Fatalf("menuCommands = %+v", got)
	}
}
