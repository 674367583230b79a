// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	kit "schedbot/internal/transport"
)

type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type SentDocument struct {
	To  kit.ChatTarget
	Doc kit.Upload
}

// Adapter records outgoing traffic and serves chats and files from maps.
type Adapter struct {
	mu        sync.Mutex
	nextID    int
	texts     []Sent
	docs      []SentDocument
	answers   []string
	menu      []kit.BotCommand
	chats     map[int64]kit.Chat
	files     map[string][]byte
	sendErr   map[int64]error
	notify    chan struct{}
	menuCalls int
}

func New() *Adapter {
	return &Adapter{
		chats:   map[int64]kit.Chat{},
		files:   map[string][]byte{},
		sendErr: map[int64]error{},
		notify:  make(chan struct{}, 64),
	}
}

func (a *Adapter) AddChat(c kit.Chat) {
	a.mu.Lock()
	a.chats[c.ID] = c
	a.mu.Unlock()
}

func (a *Adapter) AddFile(id string, data []byte) {
	a.mu.Lock()
	a.files[id] = data
	a.mu.Unlock()
}

// FailSends makes every send to chatID return err (nil clears it).
func (a *Adapter) FailSends(chatID int64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.sendErr, chatID)
		return
	}
	a.sendErr[chatID] = err
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error                        { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	a.mu.Lock()
	if err := a.sendErr[to.ChatID]; err != nil {
		a.mu.Unlock()
		return kit.MessageRef{}, err
	}
	a.nextID++
	id := a.nextID
	a.texts = append(a.texts, Sent{To: to, Text: text, Opt: opt})
	a.mu.Unlock()
	a.signal()
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, text, opt)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	a.mu.Lock()
	a.answers = append(a.answers, callbackID+":"+text)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.ChatTarget, doc kit.Upload) (kit.MessageRef, error) {
	a.mu.Lock()
	if err := a.sendErr[to.ChatID]; err != nil {
		a.mu.Unlock()
		return kit.MessageRef{}, err
	}
	a.nextID++
	id := a.nextID
	a.docs = append(a.docs, SentDocument{To: to, Doc: doc})
	a.mu.Unlock()
	a.signal()
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}

var ErrNoFile = errors.New("file not found")

func (a *Adapter) DownloadFile(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	a.mu.Lock()
	b, ok := a.files[fileID]
	a.mu.Unlock()
	if !ok {
		return nil, ErrNoFile
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(b), limit)
	}
	return append([]byte(nil), b...), nil
}

func (a *Adapter) ResolveChat(ctx context.Context, chatID int64) (kit.Chat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.chats[chatID]
	if !ok {
		return kit.Chat{}, fmt.Errorf("chat %d not found", chatID)
	}
	return c, nil
}

func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	a.menuCalls++
	a.mu.Unlock()
	return nil
}

func (a *Adapter) signal() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Texts returns a copy of every text sent so far.
func (a *Adapter) Texts() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.texts...)
}

func (a *Adapter) Documents() []SentDocument {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SentDocument(nil), a.docs...)
}

func (a *Adapter) Answers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.answers...)
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

// WaitSent blocks until at least n texts and documents were sent in total
// or ctx ends.
func (a *Adapter) WaitSent(ctx context.Context, n int) error {
	for {
		a.mu.Lock()
		got := len(a.texts) + len(a.docs)
		a.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-a.notify:
		case <-ctx.Done():
			return fmt.Errorf("sent %d of %d: %w", got, n, ctx.Err())
		}
	}
}
