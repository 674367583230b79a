package system

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"schedbot/internal/plugin"
	"schedbot/internal/transport/telegram/router"
	kit "schedbot/internal/transport"
	"schedbot/pkg/tgui"
)

// Plugin answers operator questions about the running process.
type Plugin struct {
	plugin.Base
}

func New() *Plugin             { return &Plugin{} }
func (p *Plugin) Name() string { return "system" }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "ping",
			Description: "check that the bot answers",
			Usage:       "/ping",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong", nil)
			},
		},
		{
			Route:       "uptime",
			Aliases:     []string{"up"},
			Description: "show how long the bot has been running",
			Usage:       "/uptime",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "uptime: "+durRel(time.Since(p.startedAt())), nil)
			},
		},
		{
			Route:       "status",
			Aliases:     []string{"health"},
			Description: "plugins, triggers and supervisors",
			Usage:       "/status [detail]",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdStatus,
		},
		{
			Route:       "sysinfo",
			Description: "runtime and memory info",
			Usage:       "/sysinfo",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdSysinfo,
		},
		{
			Route:       "tasks",
			Aliases:     []string{"sched"},
			Description: "list periodic triggers",
			Usage:       "/tasks",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdTasks,
		},
		{
			Route:       "audit",
			Description: "recent schedule operations",
			Usage:       "/audit [n] [--user <id>] [--chat <id>]",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdAudit,
		},
	}
}

func (p *Plugin) startedAt() time.Time {
	if p.Deps.StartedAt.IsZero() {
		return time.Now()
	}
	return p.Deps.StartedAt
}

func (p *Plugin) cmdSysinfo(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mod := ""
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}

	_, err := tgui.New().
		Title("🧠", "sysinfo").
		KV("go", runtime.Version()).
		KV("module", mod).
		KV("goroutines", fmt.Sprintf("%d", runtime.NumGoroutine())).
		KV("mem_alloc", fmtBytes(m.Alloc)).
		KV("mem_sys", fmtBytes(m.Sys)).
		KV("num_gc", fmt.Sprintf("%d", m.NumGC)).
		Build().
		Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdTasks(ctx context.Context, req *router.Request) error {
	if p.Deps.Triggers == nil {
		return req.Reply(ctx, "trigger service not available", nil)
	}
	snap := p.Deps.Triggers.Snapshot()
	if len(snap.Schedules) == 0 {
		return req.Reply(ctx, "no periodic triggers", nil)
	}

	now := time.Now()
	tz := snap.Timezone
	if tz == "" {
		tz = "Local"
	}
	lines := make([]string, 0, len(snap.Schedules)+1)
	lines = append(lines, fmt.Sprintf("⏱ triggers (%s, running=%t):", tz, snap.Running))
	for _, t := range snap.Schedules {
		next := "-"
		if !t.Next.IsZero() {
			next = t.Next.Format("2006-01-02 15:04:05")
			if t.Next.After(now) {
				next += " (in " + durRel(t.Next.Sub(now)) + ")"
			}
		}
		line := fmt.Sprintf("- %s: %s, next=%s, runs=%d fails=%d skips=%d", t.Name, t.Spec, next, t.Runs, t.Fails, t.Skips)
		if t.LastErr != "" {
			line += ", last_err=" + shorten(t.LastErr, 96)
		}
		lines = append(lines, line)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), &kit.SendOptions{DisablePreview: true})
}

func shorten(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
