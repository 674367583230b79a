package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the app and plugins.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to limit entries, newest first. A zero
	// ActorID in f matches every actor.
	RecentAudit(ctx context.Context, f AuditFilter, limit int) ([]AuditEntry, error)
	Close() error
}

// AuditEntry records one operator action. Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	RequestID string    `json:"req_id,omitempty"`
	ActorID   int64     `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	ChatID    int64     `json:"chat_id"`
	Plugin    string    `json:"plugin"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
	MetaJSON  string    `json:"meta,omitempty"`
}

type AuditFilter struct {
	ActorID int64
	ChatID  int64
}

func (f AuditFilter) match(e AuditEntry) bool {
	if f.ActorID != 0 && e.ActorID != f.ActorID {
		return false
	}
	if f.ChatID != 0 && e.ChatID != f.ChatID {
		return false
	}
	return true
}
