package schedules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/plugin"
	"schedbot/internal/schedule"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
)

const (
	defaultTickInterval    = 60 * time.Second
	defaultTickTimeout     = 50 * time.Second
	defaultDeliveryTimeout = 10 * time.Second
	defaultMaxImportBytes  = 1 << 20
	defaultPageSize        = 5
)

// Event types published on the bus.
const (
	EventCreated        = "schedule.created"
	EventUpdated        = "schedule.updated"
	EventDeleted        = "schedule.deleted"
	EventImported       = "schedule.imported"
	EventDelivered      = "schedule.delivered"
	EventDeliveryFailed = "schedule.delivery_failed"
)

// Config is plugins.schedules.config.
type Config struct {
	TickInterval    string `json:"tick_interval"`
	TickTimeout     string `json:"tick_timeout"`
	DeliveryTimeout string `json:"delivery_timeout"`
	MaxImportBytes  int64  `json:"max_import_bytes"`
	PageSize        int    `json:"page_size"`
}

type settings struct {
	tick            time.Duration
	tickTimeout     time.Duration
	deliveryTimeout time.Duration
	maxImportBytes  int64
	pageSize        int
}

func parseConfig(raw json.RawMessage) (settings, error) {
	c, err := plugin.DecodeConfig[Config](raw)
	if err != nil {
		return settings{}, err
	}
	var s settings
	if s.tick, err = config.ParseDurationOrDefault("tick_interval", c.TickInterval, defaultTickInterval); err != nil {
		return settings{}, err
	}
	if s.tickTimeout, err = config.ParseDurationOrDefault("tick_timeout", c.TickTimeout, defaultTickTimeout); err != nil {
		return settings{}, err
	}
	if s.deliveryTimeout, err = config.ParseDurationOrDefault("delivery_timeout", c.DeliveryTimeout, defaultDeliveryTimeout); err != nil {
		return settings{}, err
	}
	if s.tick < time.Second {
		return settings{}, errors.New("tick_interval must be at least 1s")
	}
	if strings.TrimSpace(c.TickTimeout) == "" && s.tickTimeout > s.tick {
		s.tickTimeout = s.tick
	}
	if s.tickTimeout > s.tick {
		return settings{}, fmt.Errorf("tick_timeout (%s) must not exceed tick_interval (%s)", s.tickTimeout, s.tick)
	}
	switch {
	case c.MaxImportBytes < 0:
		return settings{}, errors.New("max_import_bytes must be >= 0")
	case c.MaxImportBytes == 0:
		s.maxImportBytes = defaultMaxImportBytes
	default:
		s.maxImportBytes = c.MaxImportBytes
	}
	switch {
	case c.PageSize < 0 || c.PageSize > 20:
		return settings{}, errors.New("page_size must be between 1 and 20")
	case c.PageSize == 0:
		s.pageSize = defaultPageSize
	default:
		s.pageSize = c.PageSize
	}
	return s, nil
}

// Plugin exposes the schedule commands and drives delivery ticks.
type Plugin struct {
	plugin.Base

	mu  sync.RWMutex
	set settings

	svc *schedule.Service
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "schedules" }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	if deps.Adapter == nil {
		return errors.New("adapter required")
	}
	set, _ := parseConfig(nil)
	p.set = set

	pf := platform{ad: deps.Adapter}
	p.svc = schedule.NewService(schedule.NewStore(), pf, pf, p.Log,
		schedule.WithLocation(p.location()),
		schedule.WithDeliveryTimeout(set.deliveryTimeout),
		schedule.WithObserver(p.onDelivery),
	)
	return nil
}

// Service is the schedule service the commands run against.
func (p *Plugin) Service() *schedule.Service { return p.svc }

func (p *Plugin) location() *time.Location {
	if p.Deps.Config == nil {
		return time.Local
	}
	cfg := p.Deps.Config.Get()
	if cfg == nil {
		return time.Local
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return time.Local
	}
	return loc
}

func (p *Plugin) settings() settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return p.registerTick()
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}

func (p *Plugin) registerTick() error {
	set := p.settings()
	return p.Every("tick", set.tick, set.tickTimeout, func(ctx context.Context) error {
		p.svc.Tick(ctx)
		return ctx.Err()
	})
}

func (p *Plugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	_, err := parseConfig(raw)
	return err
}

// OnConfigChange also picks up scheduler.timezone, which lives outside the
// plugin section.
func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	set, err := parseConfig(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	old := p.set
	p.set = set
	p.mu.Unlock()

	p.svc.Reconfigure(p.location(), set.deliveryTimeout)
	if p.Runner != nil && (old.tick != set.tick || old.tickTimeout != set.tickTimeout) {
		if err := p.registerTick(); err != nil {
			return err
		}
		p.Log.Info("tick rescheduled", logx.Duration("every", set.tick), logx.Duration("timeout", set.tickTimeout))
	}
	return nil
}

// DeliveryNotice is the Data of schedule.delivered and
// schedule.delivery_failed events.
type DeliveryNotice struct {
	ScheduleID int64
	ChannelID  int64
	At         time.Time
	Err        string
}

func (p *Plugin) onDelivery(ev schedule.DeliveryEvent) {
	n := DeliveryNotice{ScheduleID: ev.ScheduleID, ChannelID: ev.ChannelID, At: ev.At}
	if ev.Err != nil {
		n.Err = ev.Err.Error()
		p.Publish(EventDeliveryFailed, n)
		return
	}
	p.Publish(EventDelivered, n)
}

// Notice is the Data of the other schedule.* events.
type Notice struct {
	ServerID int64
	UserID   int64
	IDs      []int64
}

func (p *Plugin) Commands() []router.Command {
	return p.commands()
}

func (p *Plugin) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{{
		Action:      "list",
		Description: "page through your schedules",
		Access:      router.CallbackAccessEveryone,
		Handle:      p.onListPage,
	}}
}
