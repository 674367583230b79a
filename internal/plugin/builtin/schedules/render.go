package schedules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"schedbot/internal/schedule"
	"schedbot/pkg/tgui"
)

const previewRunes = 100

func preview(msg string) string {
	return tgui.TruncRunes(msg, previewRunes, "...")
}

func channelLabel(name string, id int64) string {
	if name == "" {
		return "chat " + strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s (%d)", name, id)
}

func renderError(msg string) tgui.Message {
	return tgui.New().Title("❌", "Error").Line(msg).Build()
}

func renderCreated(res schedule.CreateResult, loc *time.Location) tgui.Message {
	r := res.Record
	return tgui.New().
		Title("✅", "Schedule created").
		KV("ID", "#"+strconv.FormatInt(r.ID, 10)).
		KV("Channel", channelLabel(res.Channel.Name, res.Channel.ID)).
		KV("First run", schedule.FormatTimestamp(r.FirstRunAt, loc)).
		KV("Every", schedule.FormatInterval(r.IntervalSeconds)).
		Blank().
		Quote(preview(r.Message)).
		Build()
}

func renderUpdated(r schedule.Record, loc *time.Location) tgui.Message {
	return tgui.New().
		Title("✏️", fmt.Sprintf("Schedule #%d updated", r.ID)).
		KV("Channel", channelLabel("", r.ChannelID)).
		KV("Next run", schedule.FormatTimestamp(r.NextRunAt(), loc)).
		KV("Every", schedule.FormatInterval(r.IntervalSeconds)).
		Blank().
		Quote(preview(r.Message)).
		Build()
}

func renderDeleted(r schedule.Record) tgui.Message {
	return tgui.New().
		Title("🗑", fmt.Sprintf("Schedule #%d deleted", r.ID)).
		Quote(preview(r.Message)).
		Build()
}

func renderInfo(v schedule.View, loc *time.Location) tgui.Message {
	last := "not run yet"
	if v.LastRunAt != 0 {
		last = schedule.FormatTimestamp(v.LastRunAt, loc)
	}
	return tgui.New().
		Title("📋", fmt.Sprintf("Schedule #%d", v.ID)).
		KV("Channel", channelLabel(v.ChannelName, v.ChannelID)).
		KV("Next run", schedule.FormatTimestamp(v.NextRunAt, loc)).
		KV("Every", schedule.FormatInterval(v.IntervalSeconds)).
		KV("First run", schedule.FormatTimestamp(v.FirstRunAt, loc)).
		KV("Last run", last).
		Blank().
		Quote(v.Message).
		Build()
}

func (p *Plugin) renderList(views []schedule.View, index int) tgui.Message {
	loc := p.svc.Location()
	pg := tgui.Paginate(len(views), index, p.settings().pageSize)

	b := tgui.New().Title("📅", "Your schedules")
	if len(views) == 0 {
		b.Line("No schedules yet. Create one with /create.")
	}
	for _, v := range views[pg.From:pg.To] {
		b.Blank().
			Section(fmt.Sprintf("#%d", v.ID)).
			KV("Channel", channelLabel(v.ChannelName, v.ChannelID)).
			KV("Next run", schedule.FormatTimestamp(v.NextRunAt, loc)).
			KV("Every", schedule.FormatInterval(v.IntervalSeconds)).
			Quote(preview(v.Message))
	}
	b.Blank().Line(fmt.Sprintf("%d schedule(s) in total", len(views)))
	if pg.Pages > 1 {
		b.HTML(tgui.I(pg.Label()))
	}
	return b.Inline(p.pager(pg)).Build()
}

func (p *Plugin) pager(pg tgui.Page) *tgui.Inline {
	kb := tgui.NewInline()
	if pg.Pages <= 1 {
		return kb
	}
	// payloads are page numbers, far below the callback data limit
	prevData, _ := tgui.Data(p.Name(), "list", strconv.Itoa(pg.Index-1))
	nextData, _ := tgui.Data(p.Name(), "list", strconv.Itoa(pg.Index+1))
	prev := tgui.Btn("◀️ Prev", prevData)
	next := tgui.Btn("Next ▶️", nextData)
	switch {
	case pg.HasPrev && pg.HasNext:
		kb.Row(prev, next)
	case pg.HasPrev:
		kb.Row(prev)
	case pg.HasNext:
		kb.Row(next)
	}
	return kb
}

func renderImported(res schedule.ImportResult) tgui.Message {
	b := tgui.New().
		Title("📥", "Import finished").
		KV("Mode", string(res.Mode)).
		KV("Imported", strconv.Itoa(res.Imported()))
	if res.Mode == schedule.ImportOverwrite {
		b.KV("Replaced", strconv.Itoa(res.Removed))
	}
	b.KV("Skipped", strconv.Itoa(res.Skipped))
	reasons := make([]string, 0, len(res.ByReason))
	for r, n := range res.ByReason {
		if n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s: %d", r, n))
		}
	}
	sort.Strings(reasons)
	if len(reasons) > 0 {
		b.Section("Skip reasons")
	}
	for _, r := range reasons {
		b.Line("  " + r)
	}
	if len(res.IDs) > 0 {
		ids := make([]string, 0, len(res.IDs))
		for _, id := range res.IDs {
			ids = append(ids, "#"+strconv.FormatInt(id, 10))
		}
		b.KV("New IDs", strings.Join(ids, ", "))
	}
	return b.Build()
}
