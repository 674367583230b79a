package schedule

import (
	"context"
	"time"
)

// Channel is a delivery target as seen by the chat platform.
type Channel struct {
	ID       int64
	ServerID int64
	Name     string
}

// ChannelResolver looks up a channel by id. An error means the channel is
// unknown or unreachable.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, channelID int64) (Channel, error)
}

// Sender delivers text into a channel.
type Sender interface {
	SendMessage(ctx context.Context, channelID int64, text string) error
}

// Caller identifies who issued a command and where.
type Caller struct {
	ServerID    int64
	UserID      int64
	DisplayName string
}

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time
