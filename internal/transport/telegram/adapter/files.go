package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"

	tele "gopkg.in/telebot.v4"

	kit "schedbot/internal/transport"
)

// ErrFileTooLarge is returned by DownloadFile when the file exceeds the limit.
var ErrFileTooLarge = errors.New("file too large")

// DownloadFile fetches a file by id. Files above limit bytes are rejected
// before and during the download; limit <= 0 disables the check.
func (a *Adapter) DownloadFile(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	f, err := a.bot.FileByID(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if limit > 0 && int64(f.FileSize) > limit {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, f.FileSize, limit)
	}
	rc, err := a.bot.File(&f)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer rc.Close()

	// The HTTP body is not context-aware here; close it when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()

	r := io.Reader(rc)
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, limit)
	}
	return b, nil
}

// ResolveChat asks Telegram for a chat the bot can see.
func (a *Adapter) ResolveChat(ctx context.Context, chatID int64) (kit.Chat, error) {
	if err := a.wait(ctx); err != nil {
		return kit.Chat{}, err
	}
	c, err := a.bot.ChatByID(chatID)
	if err != nil {
		return kit.Chat{}, err
	}
	return convertChat(c), nil
}

func convertChat(c *tele.Chat) kit.Chat {
	out := kit.Chat{
		ID:           c.ID,
		Title:        c.Title,
		Username:     c.Username,
		LinkedChatID: c.LinkedChatID,
	}
	switch c.Type {
	case tele.ChatPrivate:
		out.Type = kit.ChatPrivate
		if out.Title == "" {
			out.Title = c.FirstName
		}
	case tele.ChatGroup:
		out.Type = kit.ChatGroup
	case tele.ChatSuperGroup:
		out.Type = kit.ChatSupergroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		out.Type = kit.ChatChannel
	default:
		out.Type = kit.ChatType(c.Type)
	}
	return out
}
