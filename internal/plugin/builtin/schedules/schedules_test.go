package schedules

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/plugin"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/transport/transporttest"
	logx "schedbot/pkg/logx"
)

const (
	group   = int64(-100)
	channel = int64(-200)
	foreign = int64(-300)
	alice   = int64(1)
	bob     = int64(2)
)

type harness struct {
	t       *testing.T
	p       *Plugin
	pm      *plugin.Manager
	cfgm    *config.ConfigManager
	ad      *transporttest.Adapter
	trig    *scheduler.Service
	bus     eventbus.Bus
	store   storage.Store
	updates chan kit.Update
}

func newHarness(t *testing.T, pluginCfg string) *harness {
	t.Helper()
	cfgm := config.NewConfigManager("")
	cfgm.Commit(&config.Config{
		Telegram:  config.TelegramConfig{Workers: 1},
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
		Plugins: map[string]config.PluginConfigRaw{
			"schedules": {Enabled: true, Config: json.RawMessage(pluginCfg)},
		},
	})

	ad := transporttest.New()
	ad.AddChat(kit.Chat{ID: group, Type: kit.ChatSupergroup, Title: "team"})
	ad.AddChat(kit.Chat{ID: channel, Type: kit.ChatChannel, Title: "news", LinkedChatID: group})
	ad.AddChat(kit.Chat{ID: foreign, Type: kit.ChatChannel, Title: "elsewhere", LinkedChatID: -999})

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	trig := scheduler.New(scheduler.Config{}, logx.Nop(), bus)
	cmdm := router.NewCommandManager(logx.Nop(), ad, cfgm, router.NewSupervisorRegistry())
	pm := plugin.NewManager(logx.Nop(), cfgm, plugin.Deps{
		Logger:   logx.Nop(),
		Adapter:  ad,
		Config:   cfgm,
		Triggers: trig,
		Bus:      bus,
		Store:    st,
	}, cmdm)
	p := New()
	pm.Register(p)

	ctx, cancel := context.WithCancel(context.Background())
	if err := pm.StartAll(ctx); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = cmdm.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		pm.StopAll(sctx, "test")
		scancel()
		cancel()
		<-done
	})
	return &harness{t: t, p: p, pm: pm, cfgm: cfgm, ad: ad, trig: trig, bus: bus, store: st, updates: updates}
}

func (h *harness) sent() int { return len(h.ad.Texts()) + len(h.ad.Documents()) }

func (h *harness) push(up kit.Update) {
	h.t.Helper()
	n := h.sent()
	h.updates <- up
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ad.WaitSent(ctx, n+1); err != nil {
		h.t.Fatalf("no reply: %v", err)
	}
}

// say sends text as from in the group and returns the reply text.
func (h *harness) say(from int64, text string) string {
	h.t.Helper()
	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: group, FromID: from, FromUsername: "user", Text: text, IsGroup: true,
	}})
	texts := h.ad.Texts()
	return texts[len(texts)-1].Text
}

func mustContain(t *testing.T, got string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Fatalf("reply %q does not contain %q", got, w)
		}
	}
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	out := h.say(alice, "/create -200 2099-01-02 09:30 90 hello <team>\nsecond line")
	mustContain(t, out, "Schedule created", "#1", "news (-200)", "2099-01-02 09:30:00", "1.5 hours", "hello &lt;team&gt;\nsecond line")

	out = h.say(alice, "/schedule create here 2099-01-03 10:00 60 standup")
	mustContain(t, out, "#2", "team (-100)")

	mustContain(t, h.say(alice, "/create -300 2099-01-02 09:30 5 nope"), "does not belong")
	mustContain(t, h.say(alice, "/create -200 2000-01-02 09:30 5 old"), "past time")
	mustContain(t, h.say(alice, "/create -200 2099-01-02 09:30 soon x"), "invalid interval")
	mustContain(t, h.say(alice, "/create here"), "usage", "/create &lt;channel_id|here&gt;")

	out = h.say(alice, "/info 1")
	mustContain(t, out, "Schedule #1", "not run yet", "2099-01-02 09:30:00")
	mustContain(t, h.say(bob, "/info 1"), "schedule #1 not found")

	out = h.say(alice, `/update 1 --message "new text" --interval 30`)
	mustContain(t, out, "Schedule #1 updated", "30 minutes", "new text")
	mustContain(t, h.say(alice, "/update 1"), "nothing to update")
	mustContain(t, h.say(alice, "/update 1 --hour x"), "invalid hour")

	out = h.say(alice, "/list")
	mustContain(t, out, "#1", "#2", "2 schedule(s) in total")
	mustContain(t, h.say(bob, "/list"), "No schedules yet", "0 schedule(s)")

	mustContain(t, h.say(alice, "/delete 2"), "Schedule #2 deleted", "standup")
	mustContain(t, h.say(alice, "/delete 2"), "schedule #2 not found")

	got, err := h.store.RecentAudit(context.Background(), storage.AuditFilter{ActorID: alice}, 50)
	if err != nil {
		t.Fatalf("RecentAudit error: %v", err)
	}
	var creates, failedDeletes int
	for _, e := range got {
		if e.Plugin != "schedules" {
			t.Fatalf("audit plugin = %q", e.Plugin)
		}
		switch {
		case e.Action == "create" && e.OK:
			creates++
		case e.Action == "delete" && !e.OK:
			failedDeletes++
		}
	}
	if creates != 2 || failedDeletes != 1 {
		t.Fatalf("audit creates = %d, failed deletes = %d; entries %+v", creates, failedDeletes, got)
	}
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	events, unsub := h.bus.Subscribe(8, "schedule.imported")
	defer unsub()

	h.say(alice, "/create -200 2099-01-02 09:30 60 one")
	h.say(alice, "/create here 2099-01-02 10:30 60 two")

	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: group, FromID: alice, Text: "/export", IsGroup: true}})
	docs := h.ad.Documents()
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	exp := docs[0].Doc
	if !strings.HasSuffix(exp.FileName, ".json") || exp.MIME != "application/json" {
		t.Fatalf("export upload = %+v", exp)
	}
	var doc schedule.ExportDocument
	if err := json.Unmarshal(exp.Data, &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if doc.Info.TotalSchedules != 2 || doc.Info.GuildID != group {
		t.Fatalf("export info = %+v", doc.Info)
	}

	h.ad.AddFile("file-1", exp.Data)
	attached := &kit.Document{FileID: "file-1", FileName: exp.FileName, Size: int64(len(exp.Data))}

	// Bob imports Alice's export as a reply to the document.
	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: group, FromID: bob, Text: "/import", IsGroup: true,
		ReplyTo: &kit.Message{ChatID: group, FromID: alice, Document: attached},
	}})
	texts := h.ad.Texts()
	mustContain(t, texts[len(texts)-1].Text, "Import finished", "Imported</b>: 2", "#3, #4")
	mustContain(t, h.say(bob, "/list"), "2 schedule(s) in total")

	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: group, FromID: bob, Text: "/import overwrite", IsGroup: true, Document: attached,
	}})
	texts = h.ad.Texts()
	mustContain(t, texts[len(texts)-1].Text, "overwrite", "Replaced</b>: 2")
	mustContain(t, h.say(bob, "/list"), "2 schedule(s) in total")

	mustContain(t, h.say(bob, "/import"), "attach a .json export")
	mustContain(t, h.say(bob, "/import merge"), "unknown import mode")

	h.ad.AddFile("bad", []byte(`[1,2]`))
	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: group, FromID: bob, Text: "/import", IsGroup: true,
		Document: &kit.Document{FileID: "bad", FileName: "bad.json", Size: 5},
	}})
	texts = h.ad.Texts()
	mustContain(t, texts[len(texts)-1].Text, "import failed")

	partial := []byte(`{"schedules":[{"channel":-200,"message":"ok","date":4070908800,"interval":60},{"channel":-200}]}`)
	h.ad.AddFile("partial", partial)
	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: group, FromID: bob, Text: "/import", IsGroup: true,
		Document: &kit.Document{FileID: "partial", FileName: "partial.json", Size: int64(len(partial))},
	}})
	texts = h.ad.Texts()
	mustContain(t, texts[len(texts)-1].Text, "Imported</b>: 1", "Skipped</b>: 1", "<b>Skip reasons</b>", "missing_field: 1")

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if n, ok := ev.Data.(Notice); !ok || n.UserID != bob || len(n.IDs) != 2 {
				t.Fatalf("event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("schedule.imported not published")
		}
	}
}

func TestImportSizeLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, `{"max_import_bytes": 10}`)
	h.ad.AddFile("big", []byte(`{"schedules": []}`))
	h.push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: group, FromID: alice, Text: "/import", IsGroup: true,
		Document: &kit.Document{FileID: "big", FileName: "big.json", Size: 17},
	}})
	texts := h.ad.Texts()
	mustContain(t, texts[len(texts)-1].Text, "file is too large")
}

func TestListPaging(t *testing.T) {
	t.Parallel()
	h := newHarness(t, `{"page_size": 2}`)
	for i := 0; i < 3; i++ {
		h.say(alice, "/create here 2099-01-02 09:30 60 msg")
	}
	h.say(alice, "/list")
	first := h.ad.Texts()[len(h.ad.Texts())-1]
	mustContain(t, first.Text, "#1", "#2", "page 1/2", "3 schedule(s) in total")
	if strings.Contains(first.Text, "#3") {
		t.Fatalf("first page shows #3: %q", first.Text)
	}
	if first.Opt == nil || first.Opt.ReplyMarkupAdapter == nil {
		t.Fatal("first page has no keyboard")
	}

	h.push(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", FromID: alice, ChatID: group, MessageID: 7, Data: "schedules:list:1",
	}})
	mustContain(t, h.ad.Texts()[len(h.ad.Texts())-1].Text, "#3", "page 2/2")

	// Someone else paging the same message only sees their own list.
	h.push(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb2", FromID: bob, ChatID: group, MessageID: 7, Data: "schedules:list:1",
	}})
	mustContain(t, h.ad.Texts()[len(h.ad.Texts())-1].Text, "No schedules yet")
}

func TestTickTriggerFollowsConfig(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	spec := func() string {
		for _, s := range h.trig.Snapshot().Schedules {
			if s.Name == "schedules:tick" {
				return s.Spec
			}
		}
		return ""
	}
	if got := spec(); got != "@every 1m0s" {
		t.Fatalf("tick spec = %q, want @every 1m0s", got)
	}

	cfg := *h.cfgm.Get()
	cfg.Plugins = map[string]config.PluginConfigRaw{
		"schedules": {Enabled: true, Config: json.RawMessage(`{"tick_interval": "30s", "tick_timeout": "20s"}`)},
	}
	h.cfgm.Commit(&cfg)
	h.pm.OnConfigUpdate(context.Background(), &cfg)
	if got := spec(); got != "@every 30s" {
		t.Fatalf("tick spec after reload = %q, want @every 30s", got)
	}

	cfg.Plugins = map[string]config.PluginConfigRaw{"schedules": {Enabled: false}}
	h.cfgm.Commit(&cfg)
	h.pm.OnConfigUpdate(context.Background(), &cfg)
	if got := spec(); got != "" {
		t.Fatalf("tick still registered after disable: %q", got)
	}
}

func TestDeliveryEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	events, unsub := h.bus.Subscribe(4, "schedule.deliver")
	defer unsub()

	at := time.Unix(1700000000, 0)
	h.p.onDelivery(schedule.DeliveryEvent{ScheduleID: 1, ChannelID: channel, At: at})
	h.p.onDelivery(schedule.DeliveryEvent{ScheduleID: 2, ChannelID: channel, At: at, Err: errors.New("boom")})

	want := []struct {
		typ string
		err string
	}{
		{EventDelivered, ""},
		{EventDeliveryFailed, "boom"},
	}
	for _, w := range want {
		select {
		case ev := <-events:
			n, ok := ev.Data.(DeliveryNotice)
			if ev.Type != w.typ || !ok || n.Err != w.err || n.ChannelID != channel {
				t.Fatalf("event = %+v, want type %s err %q", ev, w.typ, w.err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s not published", w.typ)
		}
	}
}

func TestPlatformResolve(t *testing.T) {
	t.Parallel()
	ad := transporttest.New()
	ad.AddChat(kit.Chat{ID: group, Type: kit.ChatGroup, Title: "team"})
	ad.AddChat(kit.Chat{ID: channel, Type: kit.ChatChannel, Username: "news", LinkedChatID: group})
	ad.AddChat(kit.Chat{ID: foreign, Type: kit.ChatChannel})
	pf := platform{ad: ad}
	ctx := context.Background()

	tests := []struct {
		id      int64
		want    schedule.Channel
		wantErr bool
	}{
		{id: group, want: schedule.Channel{ID: group, ServerID: group, Name: "team"}},
		{id: channel, want: schedule.Channel{ID: channel, ServerID: group, Name: "@news"}},
		{id: foreign, wantErr: true},
		{id: 42, wantErr: true},
	}
	for _, tt := range tests {
		got, err := pf.ResolveChannel(ctx, tt.id)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ResolveChannel(%d) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ResolveChannel(%d) = %+v, want %+v", tt.id, got, tt.want)
		}
	}
}

func TestParseConfig(t *testing.T) {
	t.Parallel()
	def, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig(nil) error: %v", err)
	}
	if def.tick != time.Minute || def.tickTimeout != 50*time.Second || def.deliveryTimeout != 10*time.Second ||
		def.maxImportBytes != 1<<20 || def.pageSize != 5 {
		t.Fatalf("defaults = %+v", def)
	}

	short, err := parseConfig(json.RawMessage(`{"tick_interval": "20s"}`))
	if err != nil || short.tickTimeout != 20*time.Second {
		t.Fatalf("parseConfig(20s) = %+v, %v; want tick_timeout capped to 20s", short, err)
	}

	bad := []string{
		`{"tick_interval": "soon"}`,
		`{"tick_interval": "500ms"}`,
		`{"tick_interval": "10s", "tick_timeout": "20s"}`,
		`{"max_import_bytes": -1}`,
		`{"page_size": 50}`,
		`{"unknown": true}`,
	}
	for _, raw := range bad {
		if _, err := parseConfig(json.RawMessage(raw)); err == nil {
			t.Fatalf("parseConfig(%s) succeeded, want error", raw)
		}
	}
}
