package system

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"schedbot/internal/storage"
	"schedbot/internal/transport/telegram/router"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

const (
	defaultAuditRows = 10
	maxAuditRows     = 50
)

func (p *Plugin) cmdAudit(ctx context.Context, req *router.Request) error {
	st := p.Deps.Store
	if st == nil {
		return req.Reply(ctx, "audit storage is disabled (storage.driver: none)", nil)
	}

	limit := defaultAuditRows
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return req.Reply(ctx, "usage: /audit [n] [--user <id>] [--chat <id>]", nil)
		}
		limit = min(n, maxAuditRows)
	}
	var f storage.AuditFilter
	for _, fl := range []struct {
		name string
		dst  *int64
	}{{"user", &f.ActorID}, {"chat", &f.ChatID}} {
		v, ok := req.Flag(fl.name)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return req.Reply(ctx, fmt.Sprintf("invalid --%s %q", fl.name, v), nil)
		}
		*fl.dst = id
	}

	rows, err := st.RecentAudit(ctx, f, limit)
	if err != nil {
		req.Logger.Warn("audit query failed", logx.Err(err))
		return req.Reply(ctx, "audit query failed", nil)
	}
	if len(rows) == 0 {
		return req.Reply(ctx, "no audit entries", nil)
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, fmt.Sprintf("🧾 last %d audit entries", len(rows)))
	for _, e := range rows {
		lines = append(lines, formatAudit(e))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), &kit.SendOptions{DisablePreview: true})
}

func formatAudit(e storage.AuditEntry) string {
	status := "ok"
	if !e.OK {
		status = "fail"
		if e.Error != "" {
			status += ": " + shorten(e.Error, 80)
		}
	}
	who := e.ActorName
	if who == "" {
		who = strconv.FormatInt(e.ActorID, 10)
	}
	line := fmt.Sprintf("%s %s/%s", e.At.Format("01-02 15:04:05"), e.Plugin, e.Action)
	if e.Target != "" {
		line += " " + e.Target
	}
	return line + fmt.Sprintf(" by %s in %d (%s)", who, e.ChatID, status)
}
