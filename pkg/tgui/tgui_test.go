package tgui

import (
	"errors"
	"strings"
	"testing"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello..."},
		{"héllo wörld", 7, "héllo w..."},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n, "..."); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()
	p := Paginate(25, 1, 10)
	if p.From != 10 || p.To != 20 || !p.HasPrev || !p.HasNext || p.Pages != 3 {
		t.Fatalf("page = %+v", p)
	}
	if got := p.Label(); got != "page 2/3 • 11-20 of 25" {
		t.Fatalf("Label = %q", got)
	}
	last := Paginate(25, 9, 10)
	if last.Index != 2 || last.From != 20 || last.To != 25 || last.HasNext {
		t.Fatalf("clamped page = %+v", last)
	}
	empty := Paginate(0, 0, 10)
	if empty.From != 0 || empty.To != 0 || empty.Label() != "page 1/1" {
		t.Fatalf("empty page = %+v", empty)
	}
}

func TestData(t *testing.T) {
	t.Parallel()
	got, err := Data("schedules", "list", "2")
	if err != nil || got != "schedules:list:2" {
		t.Fatalf("Data = %q, %v", got, err)
	}
	if got, _ := Data("schedules", "list", ""); got != "schedules:list" {
		t.Fatalf("Data without payload = %q", got)
	}
	if _, err := Data("schedules", "list", strings.Repeat("x", 60)); !errors.Is(err, ErrCallbackDataTooLong) {
		t.Fatalf("err = %v, want ErrCallbackDataTooLong", err)
	}
}

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()
	m := New().
		Title("⏰", "Schedule <7>").
		KV("Channel", "a & b").
		KV("Empty", "").
		Section("#3 <x>").
		Quote("line <1>\nline 2").
		Build()
	want := "⏰ <b>Schedule &lt;7&gt;</b>\n• <b>Channel</b>: a &amp; b\n• <b>Empty</b>\n<b>#3 &lt;x&gt;</b>\n<blockquote>line &lt;1&gt;\nline 2</blockquote>"
	if m.Text != want {
		t.Fatalf("Text = %q, want %q", m.Text, want)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview || m.Opt.ReplyMarkupAdapter != nil {
		t.Fatalf("Opt = %+v", m.Opt)
	}

	kb := NewInline().Row(Btn("next", "schedules:list:1"))
	if m := New().Line("x").Inline(kb).Build(); m.Opt.ReplyMarkupAdapter == nil {
		t.Fatal("markup not attached")
	}
}
