package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: 10s
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: UTC
storage:
  driver: file
  path: ./audit
plugins:
  schedules:
    enabled: true
    config:
      tick_interval: 60s
`

func TestDecodeYAMLAndJSON(t *testing.T) {
	t.Parallel()
	y, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode yaml error: %v", err)
	}
	if y.Telegram.Token != "123:abc" || len(y.Telegram.OwnerUserIDs) != 1 {
		t.Fatalf("telegram = %+v", y.Telegram)
	}
	p, ok := y.Plugins["schedules"]
	if !ok || !p.Enabled || !strings.Contains(string(p.Config), "tick_interval") {
		t.Fatalf("plugins = %+v", y.Plugins)
	}

	j, err := Decode("config.json", []byte(`{"telegram":{"token":"t"},"scheduler":{"enabled":true},"plugins":{}}`))
	if err != nil {
		t.Fatalf("Decode json error: %v", err)
	}
	if !j.Scheduler.Enabled {
		t.Fatal("scheduler.enabled = false")
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		raw  string
	}{
		{name: "unknown top-level", file: "c.json", raw: `{"telegram":{"token":"t"},"bogus":1}`},
		{name: "unknown plugin key", file: "c.json", raw: `{"plugins":{"x":{"enabled":true,"timeout":"1s"}}}`},
		{name: "trailing data", file: "c.json", raw: `{"telegram":{"token":"t"}}{}`},
		{name: "bad yaml", file: "c.yml", raw: "telegram: [unterminated"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.file, []byte(tt.raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := &Config{Telegram: TelegramConfig{Token: "t", PollTimeout: "5s"}, Scheduler: SchedulerConfig{Timezone: "UTC"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	bad := &Config{
		Telegram:  TelegramConfig{PollTimeout: "soon"},
		Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"},
		Storage:   &StorageConfig{Driver: "postgres"},
	}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"telegram.token", "telegram.poll_timeout", "scheduler.timezone", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault(\"\") = %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "15s", time.Minute)
	if err != nil || d != 15*time.Second {
		t.Fatalf("ParseDurationOrDefault(15s) = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, _ := Decode("a.yaml", []byte(sampleYAML))
	b, _ := Decode("b.yaml", []byte(strings.Replace(sampleYAML, "tick_interval: 60s", "tick_interval: 30s", 1)))
	changed, _, plugins := SummarizeConfigChange(a, b)
	if len(changed) != 1 || changed[0] != "plugins" {
		t.Fatalf("changed = %v, want [plugins]", changed)
	}
	if len(plugins) != 1 || plugins[0] != "schedules" {
		t.Fatalf("plugins = %v, want [schedules]", plugins)
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the loaded config")
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// unchanged content is not republished
	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatal("unchanged config was published")
	default:
	}

	next := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	select {
	case got := <-sub:
		if got.Logging.Level != "warn" {
			t.Fatalf("Level = %q, want warn", got.Logging.Level)
		}
	default:
		t.Fatal("changed config was not published")
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{raw: "", def: time.Minute, want: time.Minute},
		{raw: " 0s ", def: time.Minute, want: time.Minute},
		{raw: "90s", def: time.Minute, want: 90 * time.Second},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x.timeout", tt.raw, tt.def)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationOrDefault(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err != nil {
			if !strings.Contains(err.Error(), "x.timeout") {
				t.Fatalf("error %q does not name the key", err)
			}
			continue
		}
		if got != tt.want {
			t.Fatalf("ParseDurationOrDefault(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestYAMLNonStringKeys(t *testing.T) {
	t.Parallel()
	b, err := yamlToJSON([]byte("plugins:\n  schedules:\n    enabled: true\n    config:\n      1: one\n"))
	if err != nil {
		t.Fatalf("yamlToJSON error: %v", err)
	}
	if !strings.Contains(string(b), `"1":"one"`) {
		t.Fatalf("json = %s, want stringified key", b)
	}
	if isYAML("config.json") || !isYAML("CONFIG.YML") {
		t.Fatal("isYAML picked the wrong format")
	}
}
