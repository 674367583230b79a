package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
)

const callTimeout = 10 * time.Second

// Event is the Data of plugin.* bus events.
type Event struct {
	Plugin string `json:"plugin"`
	Reason string `json:"reason,omitempty"`
	Err    string `json:"err,omitempty"`
	TookMS int64  `json:"took_ms,omitempty"`
}

// Status is one plugin's row in a Snapshot.
type Status struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Running   bool      `json:"running"`
	LastErr   string    `json:"last_err,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type Snapshot struct {
	Time    time.Time `json:"time"`
	Plugins []Status  `json:"plugins"`
}

// Manager starts, reconfigures and stops plugins to match the config and
// keeps the router's command table in sync with what is running.
type Manager struct {
	mu sync.Mutex

	log  logx.Logger
	cfgm *config.ConfigManager
	deps Deps
	cmdm *router.CommandManager

	reg         map[string]Plugin
	run         map[string]bool
	inited      map[string]bool
	lastRawHash map[string]uint64
	lastErr     map[string]string
	startedAt   map[string]time.Time

	// baseCtx outlives the possibly call-scoped contexts handed to
	// StartAll and OnConfigUpdate; BindContext ties it to the app.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	bound      bool

	pcancel map[string]context.CancelFunc
}

func NewManager(log logx.Logger, cfgm *config.ConfigManager, deps Deps, cmdm *router.CommandManager) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	pm := &Manager{
		log:         log,
		cfgm:        cfgm,
		deps:        deps,
		cmdm:        cmdm,
		reg:         map[string]Plugin{},
		run:         map[string]bool{},
		inited:      map[string]bool{},
		lastRawHash: map[string]uint64{},
		lastErr:     map[string]string{},
		startedAt:   map[string]time.Time{},
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		pcancel:     map[string]context.CancelFunc{},
	}
	if pm.deps.Plugins == nil {
		pm.deps.Plugins = pm
	}
	if pm.deps.StartedAt.IsZero() {
		pm.deps.StartedAt = time.Now()
	}
	return pm
}

func (pm *Manager) emit(typ string, ev Event) {
	if pm.deps.Bus == nil {
		return
	}
	pm.deps.Bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// BindContext cancels every plugin context once appCtx ends. The first
// call wins.
func (pm *Manager) BindContext(appCtx context.Context) {
	pm.mu.Lock()
	if pm.bound || appCtx == nil {
		pm.mu.Unlock()
		return
	}
	pm.bound = true
	pm.mu.Unlock()
	context.AfterFunc(appCtx, pm.baseCancel)
}

func (pm *Manager) Register(p ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pl := range p {
		pm.reg[pl.Name()] = pl
	}
	pm.refreshRegistryLocked()
}

func (pm *Manager) StartAll(ctx context.Context) error {
	pm.BindContext(ctx)
	return pm.reconcile(pm.cfgm.Get())
}

func (pm *Manager) StopAll(ctx context.Context, reason string) {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		pm.stopOne(ctx, name, reason)
	}
	pm.mu.Lock()
	pm.refreshRegistryLocked()
	pm.mu.Unlock()
}

// OnConfigUpdate applies a committed config.
func (pm *Manager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	pm.BindContext(ctx)
	if err := pm.reconcile(cfg); err != nil {
		pm.log.Warn("plugin reconcile failed", logx.Err(err))
	}
}

// ValidateConfig runs each enabled plugin's ConfigValidator against cfg
// without applying anything.
func (pm *Manager) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	type target struct {
		name string
		v    ConfigValidator
		raw  json.RawMessage
	}
	pm.mu.Lock()
	var targets []target
	for name, p := range pm.reg {
		raw, ok := cfg.Plugins[name]
		v, isV := p.(ConfigValidator)
		if ok && raw.Enabled && isV {
			targets = append(targets, target{name: name, v: v, raw: raw.Config})
		}
	}
	pm.mu.Unlock()

	for _, t := range targets {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pm.safeCall("plugin.validate."+t.name, func() error { return t.v.ValidateConfig(cctx, t.raw) })
		cancel()
		if err != nil {
			return fmt.Errorf("plugin %s: %w", t.name, err)
		}
	}
	return nil
}

func (pm *Manager) stopOne(ctx context.Context, name, reason string) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()
	if !running || p == nil {
		return
	}

	start := time.Now()
	if cancel != nil {
		cancel()
	}
	// A plugin that ignores ctx must not block shutdown.
	done := make(chan struct{})
	go func() {
		_ = pm.safeCall("plugin.stop."+name, func() error { return p.Stop(ctx) })
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		pm.log.Warn("plugin stop timeout (continuing)", logx.String("plugin", name), logx.Err(ctx.Err()))
	}

	pm.mu.Lock()
	pm.run[name] = false
	delete(pm.pcancel, name)
	delete(pm.lastRawHash, name)
	delete(pm.startedAt, name)
	pm.mu.Unlock()

	took := time.Since(start)
	pm.log.Info("plugin stopped", logx.String("plugin", name), logx.String("reason", reason), logx.Duration("took", took))
	pm.emit("plugin.stopped", Event{Plugin: name, Reason: reason, TookMS: took.Milliseconds()})
}

func (pm *Manager) reconcile(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("no config")
	}
	type op struct {
		name    string
		p       Plugin
		raw     config.PluginConfigRaw
		rawHash uint64
		enabled bool
		running bool
	}
	pm.mu.Lock()
	ops := make([]op, 0, len(pm.reg))
	for name, p := range pm.reg {
		raw, ok := cfg.Plugins[name]
		ops = append(ops, op{
			name:    name,
			p:       p,
			raw:     raw,
			rawHash: configHash(raw.Config),
			enabled: ok && raw.Enabled,
			running: pm.run[name],
		})
	}
	pm.mu.Unlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i].name < ops[j].name })

	for _, o := range ops {
		switch {
		case o.enabled && !o.running:
			pm.start(o.name, o.p, o.raw.Config, o.rawHash)

		case !o.enabled && o.running:
			stopCtx, cancel := context.WithTimeout(pm.baseCtx, callTimeout)
			pm.stopOne(stopCtx, o.name, "disabled")
			cancel()

		case o.enabled && o.running:
			pm.mu.Lock()
			same := pm.lastRawHash[o.name] == o.rawHash
			pm.mu.Unlock()
			cp, ok := o.p.(ConfigurablePlugin)
			if !ok || same {
				continue
			}
			cctx, cancel := context.WithTimeout(pm.baseCtx, callTimeout)
			err := pm.safeCall("plugin.config."+o.name, func() error { return cp.OnConfigChange(cctx, o.raw.Config) })
			cancel()
			if err != nil {
				// keep running with the previous config
				pm.fail(o.name, "config", err)
				continue
			}
			pm.mu.Lock()
			pm.lastRawHash[o.name] = o.rawHash
			delete(pm.lastErr, o.name)
			pm.mu.Unlock()
			pm.log.Info("plugin config applied", logx.String("plugin", o.name))
			pm.emit("plugin.config_applied", Event{Plugin: o.name})
		}
	}

	pm.mu.Lock()
	pm.refreshRegistryLocked()
	pm.mu.Unlock()
	return nil
}

func (pm *Manager) start(name string, p Plugin, raw json.RawMessage, rawHash uint64) {
	pctx, cancel := context.WithCancel(pm.baseCtx)

	pm.mu.Lock()
	needInit := !pm.inited[name]
	deps := pm.deps
	pm.mu.Unlock()
	// Init runs once per process; later enables only Start again.
	if needInit {
		ictx, icancel := context.WithTimeout(pctx, callTimeout)
		err := pm.safeCall("plugin.init."+name, func() error { return p.Init(ictx, deps) })
		icancel()
		if err != nil {
			cancel()
			pm.fail(name, "init", err)
			return
		}
		pm.mu.Lock()
		pm.inited[name] = true
		pm.mu.Unlock()
	}

	if cp, ok := p.(ConfigurablePlugin); ok {
		cctx, ccancel := context.WithTimeout(pctx, callTimeout)
		err := pm.safeCall("plugin.config."+name, func() error { return cp.OnConfigChange(cctx, raw) })
		ccancel()
		if err != nil {
			cancel()
			pm.fail(name, "config", err)
			return
		}
	}

	if err := pm.startWithTimeout(name, p, pctx, cancel); err != nil {
		cancel()
		pm.fail(name, "start", err)
		return
	}

	pm.mu.Lock()
	pm.run[name] = true
	pm.pcancel[name] = cancel
	pm.lastRawHash[name] = rawHash
	pm.startedAt[name] = time.Now()
	delete(pm.lastErr, name)
	pm.mu.Unlock()

	pm.log.Info("plugin started", logx.String("plugin", name))
	pm.emit("plugin.started", Event{Plugin: name})
}

func (pm *Manager) fail(name, stage string, err error) {
	pm.mu.Lock()
	pm.lastErr[name] = stage + ": " + err.Error()
	pm.mu.Unlock()
	pm.log.Error("plugin "+stage+" failed", logx.String("plugin", name), logx.Err(err))
	pm.emit("plugin."+stage+"_failed", Event{Plugin: name, Err: err.Error()})
}

// startWithTimeout runs Start(pctx) but gives up after callTimeout, then
// cancels pctx and allows a short grace period.
func (pm *Manager) startWithTimeout(name string, p Plugin, pctx context.Context, cancel context.CancelFunc) error {
	done := make(chan error, 1)
	go func() {
		done <- pm.safeCall("plugin.start."+name, func() error { return p.Start(pctx) })
	}()

	t := time.NewTimer(callTimeout)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("start timeout (%s): %w", callTimeout, err)
		}
		return fmt.Errorf("start timeout (%s)", callTimeout)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("start timeout (%s): start did not return after cancel", callTimeout)
	}
}

func (pm *Manager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call", logx.String("call", label), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}

// refreshRegistryLocked publishes the commands of running plugins.
func (pm *Manager) refreshRegistryLocked() {
	if pm.cmdm == nil {
		return
	}
	var (
		cmds []router.Command
		cbs  []router.CallbackRoute
	)
	for name, p := range pm.reg {
		if !pm.run[name] {
			continue
		}
		var pc []router.Command
		_ = pm.safeCall("plugin.commands."+name, func() error { pc = p.Commands(); return nil })
		for _, c := range pc {
			c.PluginName = name
			cmds = append(cmds, c)
		}
		if cbp, ok := p.(CallbackProvider); ok {
			var pr []router.CallbackRoute
			_ = pm.safeCall("plugin.callbacks."+name, func() error { pr = cbp.Callbacks(); return nil })
			for _, r := range pr {
				r.Plugin = name
				cbs = append(cbs, r)
			}
		}
	}
	pm.cmdm.SetRegistry(cmds, cbs)
}

func (pm *Manager) Snapshot() Snapshot {
	cfg := pm.cfgm.Get()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := Snapshot{Time: time.Now()}
	for name := range pm.reg {
		st := Status{
			Name:      name,
			Running:   pm.run[name],
			LastErr:   pm.lastErr[name],
			StartedAt: pm.startedAt[name],
		}
		if cfg != nil {
			st.Enabled = cfg.Plugins[name].Enabled
		}
		out.Plugins = append(out.Plugins, st)
	}
	sort.Slice(out.Plugins, func(i, j int) bool { return out.Plugins[i].Name < out.Plugins[j].Name })
	return out
}
