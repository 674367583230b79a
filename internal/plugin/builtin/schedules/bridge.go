package schedules

import (
	"context"
	"fmt"
	"strconv"

	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
)

// platform maps Telegram chats onto the schedule ports. A group is its own
// server; a channel belongs to the discussion group it is linked to.
type platform struct {
	ad kit.Adapter
}

func (p platform) ResolveChannel(ctx context.Context, channelID int64) (schedule.Channel, error) {
	c, err := p.ad.ResolveChat(ctx, channelID)
	if err != nil {
		return schedule.Channel{}, err
	}
	server := serverOf(c)
	if server == 0 {
		return schedule.Channel{}, fmt.Errorf("chat %d is not linked to a group", channelID)
	}
	name := c.Name()
	if name == "" {
		name = strconv.FormatInt(c.ID, 10)
	}
	return schedule.Channel{ID: c.ID, ServerID: server, Name: name}, nil
}

// SendMessage delivers the stored text verbatim, without a parse mode.
func (p platform) SendMessage(ctx context.Context, channelID int64, text string) error {
	_, err := p.ad.SendText(ctx, kit.ChatTarget{ChatID: channelID}, text, nil)
	return err
}

func serverOf(c kit.Chat) int64 {
	if c.Type == kit.ChatChannel {
		return c.LinkedChatID
	}
	return c.ID
}
