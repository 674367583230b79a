package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/transport/transporttest"
	logx "schedbot/pkg/logx"
)

type fakePlugin struct {
	name     string
	startErr error
	panicOn  string

	mu      sync.Mutex
	calls   []string
	configs []string
}

func (f *fakePlugin) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.panicOn == call {
		panic("boom in " + call)
	}
}

func (f *fakePlugin) Calls() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls, ",")
}

func (f *fakePlugin) Name() string { return f.name }

func (f *fakePlugin) Init(ctx context.Context, deps Deps) error { f.record("init"); return nil }

func (f *fakePlugin) Start(ctx context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakePlugin) Stop(ctx context.Context) error { f.record("stop"); return nil }

func (f *fakePlugin) Commands() []router.Command {
	return []router.Command{{Route: f.name, Handle: func(context.Context, *router.Request) error { return nil }}}
}

func (f *fakePlugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	f.record("config")
	f.mu.Lock()
	f.configs = append(f.configs, string(raw))
	f.mu.Unlock()
	return nil
}

func (f *fakePlugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	if strings.Contains(string(raw), "bad") {
		return errors.New("bad config")
	}
	return nil
}

func pluginsCfg(blocks map[string]string) *config.Config {
	cfg := &config.Config{Plugins: map[string]config.PluginConfigRaw{}}
	for name, raw := range blocks {
		pc := config.PluginConfigRaw{Enabled: raw != "off"}
		if raw != "off" && raw != "" {
			pc.Config = json.RawMessage(raw)
		}
		cfg.Plugins[name] = pc
	}
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) (*Manager, *config.ConfigManager, eventbus.Bus) {
	t.Helper()
	cfgm := config.NewConfigManager("")
	cfgm.Commit(cfg)
	bus := eventbus.New()
	ad := transporttest.New()
	cmdm := router.NewCommandManager(logx.Nop(), ad, cfgm, router.NewSupervisorRegistry())
	pm := NewManager(logx.Nop(), cfgm, Deps{Logger: logx.Nop(), Adapter: ad, Config: cfgm, Bus: bus}, cmdm)
	return pm, cfgm, bus
}

func status(t *testing.T, pm *Manager, name string) Status {
	t.Helper()
	for _, s := range pm.Snapshot().Plugins {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("plugin %q not in snapshot", name)
	return Status{}
}

func TestManagerLifecycle(t *testing.T) {
	t.Parallel()
	pm, cfgm, bus := newTestManager(t, pluginsCfg(map[string]string{"a": `{"x": 1}`, "b": "off"}))
	events, unsub := bus.Subscribe(16, "plugin.")
	defer unsub()

	a := &fakePlugin{name: "a"}
	b := &fakePlugin{name: "b"}
	pm.Register(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pm.StartAll(ctx); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	if got := a.Calls(); got != "init,config,start" {
		t.Fatalf("a calls = %q", got)
	}
	if got := b.Calls(); got != "" {
		t.Fatalf("disabled plugin was touched: %q", got)
	}
	if st := status(t, pm, "a"); !st.Running || !st.Enabled || st.StartedAt.IsZero() {
		t.Fatalf("a status = %+v", st)
	}

	// Same JSON with different spacing and key order is not a change.
	cfg := pluginsCfg(map[string]string{"a": `{ "x" : 1 }`, "b": "off"})
	cfgm.Commit(cfg)
	pm.OnConfigUpdate(ctx, cfg)
	if got := a.Calls(); got != "init,config,start" {
		t.Fatalf("a calls after no-op reload = %q", got)
	}

	cfg = pluginsCfg(map[string]string{"a": `{"x": 2}`, "b": ""})
	cfgm.Commit(cfg)
	pm.OnConfigUpdate(ctx, cfg)
	if got := a.Calls(); got != "init,config,start,config" {
		t.Fatalf("a calls after change = %q", got)
	}
	if got := b.Calls(); got != "init,config,start" {
		t.Fatalf("b calls after enable = %q", got)
	}

	cfg = pluginsCfg(map[string]string{"a": "off", "b": ""})
	cfgm.Commit(cfg)
	pm.OnConfigUpdate(ctx, cfg)
	if st := status(t, pm, "a"); st.Running {
		t.Fatalf("a still running after disable: %+v", st)
	}

	// Re-enabling starts again without a second Init.
	cfg = pluginsCfg(map[string]string{"a": `{"x": 3}`, "b": ""})
	cfgm.Commit(cfg)
	pm.OnConfigUpdate(ctx, cfg)
	if got := a.Calls(); got != "init,config,start,config,stop,config,start" {
		t.Fatalf("a calls after re-enable = %q", got)
	}

	sctx, scancel := context.WithTimeout(context.Background(), time.Second)
	defer scancel()
	pm.StopAll(sctx, "shutdown")
	for _, p := range []*fakePlugin{a, b} {
		if !strings.HasSuffix(p.Calls(), "stop") {
			t.Fatalf("%s calls = %q, want trailing stop", p.name, p.Calls())
		}
	}

	seen := map[string]int{}
	for {
		select {
		case ev := <-events:
			seen[ev.Type]++
			continue
		default:
		}
		break
	}
	if seen["plugin.started"] != 3 || seen["plugin.stopped"] != 3 || seen["plugin.config_applied"] != 1 {
		t.Fatalf("events = %v", seen)
	}
}

func TestManagerRecordsFailures(t *testing.T) {
	t.Parallel()
	pm, _, _ := newTestManager(t, pluginsCfg(map[string]string{"bad": "", "panicky": "", "ok": ""}))
	bad := &fakePlugin{name: "bad", startErr: errors.New("no network")}
	panicky := &fakePlugin{name: "panicky", panicOn: "init"}
	ok := &fakePlugin{name: "ok"}
	pm.Register(bad, panicky, ok)

	if err := pm.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	if st := status(t, pm, "bad"); st.Running || !strings.Contains(st.LastErr, "start: no network") {
		t.Fatalf("bad status = %+v", st)
	}
	if st := status(t, pm, "panicky"); st.Running || !strings.Contains(st.LastErr, "panic") {
		t.Fatalf("panicky status = %+v", st)
	}
	if st := status(t, pm, "ok"); !st.Running || st.LastErr != "" {
		t.Fatalf("ok status = %+v", st)
	}
}

func TestManagerValidateConfig(t *testing.T) {
	t.Parallel()
	pm, _, _ := newTestManager(t, pluginsCfg(map[string]string{"a": ""}))
	pm.Register(&fakePlugin{name: "a"})

	if err := pm.ValidateConfig(context.Background(), pluginsCfg(map[string]string{"a": `{"v": "fine"}`})); err != nil {
		t.Fatalf("ValidateConfig(fine) error: %v", err)
	}
	err := pm.ValidateConfig(context.Background(), pluginsCfg(map[string]string{"a": `{"v": "bad"}`}))
	if err == nil || !strings.Contains(err.Error(), "plugin a") {
		t.Fatalf("ValidateConfig(bad) = %v, want plugin a error", err)
	}
	// disabled plugins are not validated
	if err := pm.ValidateConfig(context.Background(), pluginsCfg(map[string]string{"a": "off"})); err != nil {
		t.Fatalf("ValidateConfig(off) error: %v", err)
	}
}

func TestDecodeConfig(t *testing.T) {
	t.Parallel()
	type cfg struct {
		Every string `json:"every"`
	}
	got, err := DecodeConfig[cfg](json.RawMessage(`{"every": "5s"}`))
	if err != nil || got.Every != "5s" {
		t.Fatalf("DecodeConfig = %+v, %v", got, err)
	}
	for _, raw := range []string{"", "null", "  "} {
		if got, err := DecodeConfig[cfg](json.RawMessage(raw)); err != nil || got.Every != "" {
			t.Fatalf("DecodeConfig(%q) = %+v, %v", raw, got, err)
		}
	}
	for _, raw := range []string{`{"evry": "5s"}`, `{"every": "5s"} {}`, `[`} {
		if _, err := DecodeConfig[cfg](json.RawMessage(raw)); err == nil {
			t.Fatalf("DecodeConfig(%q) succeeded, want error", raw)
		}
	}
}

func TestConfigHash(t *testing.T) {
	t.Parallel()
	a := configHash(json.RawMessage(`{"tick_interval":"30s","page_size":5}`))
	b := configHash(json.RawMessage("{ \"page_size\": 5,\n \"tick_interval\": \"30s\" }"))
	if a != b || a == 0 {
		t.Fatalf("hashes = %d, %d; want equal and non-zero", a, b)
	}
	if c := configHash(json.RawMessage(`{"page_size":6}`)); c == a {
		t.Fatal("different config hashed the same")
	}
	if configHash(nil) != 0 || configHash(json.RawMessage("  ")) != 0 {
		t.Fatal("empty config should hash to 0")
	}
	if configHash(json.RawMessage(`{bad`)) == 0 {
		t.Fatal("invalid JSON should still hash")
	}
}
