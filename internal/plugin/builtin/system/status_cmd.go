package system

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"schedbot/internal/plugin"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/transport/telegram/router"
	kit "schedbot/internal/transport"
)

// cmdStatus renders plain text; plugin errors may contain anything.
func (p *Plugin) cmdStatus(ctx context.Context, req *router.Request) error {
	detail := len(req.Args) > 0 && strings.EqualFold(req.Args[0], "detail")
	if req.BoolFlags["detail"] {
		detail = true
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var b strings.Builder
	b.WriteString("🩺 status\n")
	fmt.Fprintf(&b, "uptime: %s\n", durRel(time.Since(p.startedAt())))
	fmt.Fprintf(&b, "goroutines: %d, heap: %s\n", runtime.NumGoroutine(), fmtBytes(m.HeapAlloc))
	if p.Deps.Bus != nil {
		fmt.Fprintf(&b, "bus dropped: %d\n", p.Deps.Bus.Dropped())
	}
	b.WriteString("\n")

	perPlugin := map[string]int{}
	if tr := p.Deps.Triggers; tr != nil {
		s := tr.Snapshot()
		state := "stopped"
		if s.Running {
			state = "running"
		}
		b.WriteString("⏱ triggers\n")
		fmt.Fprintf(&b, "  state: %s (enabled=%t)\n", state, s.Enabled)
		fmt.Fprintf(&b, "  count: %d\n", len(s.Schedules))
		for _, t := range s.Schedules {
			if i := strings.IndexByte(t.Name, ':'); i > 0 {
				perPlugin[t.Name[:i]]++
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("🔌 plugins\n")
	var snap plugin.Snapshot
	if p.Deps.Plugins != nil {
		snap = p.Deps.Plugins.Snapshot()
	}
	if len(snap.Plugins) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, st := range snap.Plugins {
		line := fmt.Sprintf("  - %s en=%v run=%v triggers=%d", st.Name, st.Enabled, st.Running, perPlugin[st.Name])
		if st.Running && !st.StartedAt.IsZero() {
			line += " up=" + durRel(time.Since(st.StartedAt))
		}
		if st.LastErr != "" {
			line += " | " + shorten(st.LastErr, 120)
		}
		b.WriteString(line + "\n")
	}

	if reg := p.Deps.Supervisors; reg != nil {
		names := reg.Names()
		b.WriteString("\n🧵 supervisors\n")
		if len(names) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, name := range names {
			s := reg.Get(name).Snapshot()
			line := fmt.Sprintf("  %s: active=%d started=%d", name, s.Active, s.Started)
			if s.FirstError != "" {
				line += " first_err=" + shorten(s.FirstError, 96)
			}
			b.WriteString(line + "\n")
			if detail {
				writeSupDetails(&b, s, 12)
			}
		}
	}

	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"), &kit.SendOptions{DisablePreview: true})
}

func writeSupDetails(b *strings.Builder, snap rtsup.Snapshot, limit int) {
	n := 0
	for _, g := range snap.Tasks {
		if g.Active == 0 && g.Started == 0 {
			continue
		}
		line := fmt.Sprintf("    - %s active=%d started=%d restarts=%d panics=%d", g.Name, g.Active, g.Started, g.Restarts, g.Panics)
		if g.LastErr != "" {
			line += ", last_err=" + shorten(g.LastErr, 96)
			if !g.LastErrAt.IsZero() {
				line += fmt.Sprintf(" (%s ago)", durRel(time.Since(g.LastErrAt)))
			}
		}
		b.WriteString(line + "\n")
		n++
		if n >= limit {
			break
		}
	}
	if n == 0 {
		b.WriteString("    (no data)\n")
	}
}
