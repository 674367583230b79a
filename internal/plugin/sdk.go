package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	"schedbot/internal/transport/telegram/router"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []router.Command
}

// ConfigurablePlugin receives plugins.<name>.config before Start and on
// every change while running.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// ConfigValidator lets a reload be rejected before anything is applied.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, raw json.RawMessage) error
}

type CallbackProvider interface {
	Callbacks() []router.CallbackRoute
}

// TriggerPort is the part of the trigger service plugins may use.
type TriggerPort interface {
	AddInterval(name string, every, timeout time.Duration, job scheduler.Job) (string, error)
	Remove(name string) bool
	Snapshot() scheduler.Snapshot
}

// StatusSource reports plugin run state. The Manager fills it in.
type StatusSource interface {
	Snapshot() Snapshot
}

type Deps struct {
	Logger   logx.Logger
	Adapter  kit.Adapter
	Config   *config.ConfigManager
	Triggers TriggerPort
	Bus      eventbus.Bus
	Store    storage.Store // nil when storage.driver is none

	Plugins     StatusSource
	Supervisors *router.SupervisorRegistry
	StartedAt   time.Time
}

// Base carries the plumbing most plugins share. Embed it and call
// InitBase, StartBase and StopBase from the matching lifecycle methods.
type Base struct {
	Log    logx.Logger
	Deps   Deps
	Runner *rtsup.Supervisor

	name     string
	ctx      context.Context
	triggers []string
}

func (b *Base) InitBase(deps Deps, name string) {
	b.Deps = deps
	b.name = name
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Log = log.With(logx.String("plugin", name))
}

// StartBase creates the plugin supervisor bound to ctx.
func (b *Base) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = rtsup.NewSupervisor(ctx, rtsup.WithLogger(b.Log), rtsup.WithCancelOnError(false))
}

// StopBase removes triggers registered through Every, then cancels the
// supervisor and waits for it within ctx.
func (b *Base) StopBase(ctx context.Context) error {
	if b.Deps.Triggers != nil {
		for _, name := range b.triggers {
			b.Deps.Triggers.Remove(name)
		}
	}
	b.triggers = nil
	if b.Runner == nil {
		return nil
	}
	b.Runner.Cancel()
	err := b.Runner.Wait(ctx)
	b.Runner = nil
	return err
}

// Context is the plugin run context, canceled on stop or disable.
func (b *Base) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// Every registers "<plugin>:<name>" on the trigger service. Registering
// the same name again replaces the previous trigger.
func (b *Base) Every(name string, every, timeout time.Duration, job scheduler.Job) error {
	if b.Deps.Triggers == nil {
		return errors.New("trigger service not available")
	}
	full := b.ns(name)
	if _, err := b.Deps.Triggers.AddInterval(full, every, timeout, job); err != nil {
		return err
	}
	for _, n := range b.triggers {
		if n == full {
			return nil
		}
	}
	b.triggers = append(b.triggers, full)
	return nil
}

func (b *Base) ns(name string) string {
	if name == "" {
		return b.name
	}
	return b.name + ":" + name
}

// Audit appends to the audit store. Without a store it is a no-op.
func (b *Base) Audit(ctx context.Context, e storage.AuditEntry) {
	st := b.Deps.Store
	if st == nil {
		return
	}
	if e.Plugin == "" {
		e.Plugin = b.name
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := st.AppendAudit(ctx, e); err != nil {
		b.Log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

// Publish sends an event on the bus, if there is one.
func (b *Base) Publish(typ string, data any) {
	if b.Deps.Bus == nil {
		return
	}
	b.Deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// DecodeConfig decodes a plugin config blob strictly. Empty input yields
// the zero value.
func DecodeConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return out, errors.New("decode config: trailing data")
	}
	return out, nil
}
