package schedules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/transport/telegram/router"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

func (p *Plugin) commands() []router.Command {
	return []router.Command{
		{
			Route:       "schedule create",
			Aliases:     []string{"create"},
			Description: "create a recurring message",
			Usage:       "/create <channel_id|here> <YYYY-MM-DD> <HH:MM> <minutes> <message...>",
			Access:      router.AccessEveryone,
			Handle:      p.cmdCreate,
		},
		{
			Route:       "schedule update",
			Aliases:     []string{"update"},
			Description: "change one of your schedules",
			Usage:       "/update <id> [--message ..] [--channel ..] [--year .. --month .. --day .. --hour .. [--minute ..]] [--interval <minutes>]",
			Access:      router.AccessEveryone,
			Handle:      p.cmdUpdate,
		},
		{
			Route:       "schedule delete",
			Aliases:     []string{"delete"},
			Description: "delete one of your schedules",
			Usage:       "/delete <id>",
			Access:      router.AccessEveryone,
			Handle:      p.cmdDelete,
		},
		{
			Route:       "schedule list",
			Aliases:     []string{"list"},
			Description: "list your schedules in this chat",
			Usage:       "/list",
			Access:      router.AccessEveryone,
			Handle:      p.cmdList,
		},
		{
			Route:       "schedule info",
			Aliases:     []string{"info"},
			Description: "show one schedule in detail",
			Usage:       "/info <id>",
			Access:      router.AccessEveryone,
			Handle:      p.cmdInfo,
		},
		{
			Route:       "schedule export",
			Aliases:     []string{"export"},
			Description: "export your schedules as JSON",
			Usage:       "/export",
			Access:      router.AccessEveryone,
			Handle:      p.cmdExport,
		},
		{
			Route:       "schedule import",
			Aliases:     []string{"import"},
			Description: "import schedules from a JSON document",
			Usage:       "/import [add|overwrite]  (caption of, or reply to, a .json file)",
			Access:      router.AccessEveryone,
			Handle:      p.cmdImport,
		},
	}
}

func callerOf(req *router.Request) schedule.Caller {
	c := schedule.Caller{ServerID: req.Chat.ChatID, UserID: req.FromID}
	if m := req.Message(); m != nil {
		c.DisplayName = m.DisplayName()
	}
	return c
}

func (p *Plugin) cmdCreate(ctx context.Context, req *router.Request) error {
	msg := strings.TrimSpace(req.Rest(4))
	if len(req.Args) < 4 || msg == "" {
		return p.usage(ctx, req)
	}
	channelID, err := parseChannel(req.Args[0], req.Chat.ChatID)
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	minutes, err := strconv.ParseInt(req.Args[3], 10, 64)
	if err != nil {
		return p.replyErr(ctx, req, badArg("interval", req.Args[3]))
	}

	c := callerOf(req)
	res, err := p.svc.Create(ctx, c, schedule.CreateInput{
		ChannelID:       channelID,
		Message:         msg,
		Date:            req.Args[1],
		Time:            req.Args[2],
		IntervalMinutes: minutes,
	})
	p.audit(ctx, req, "create", auditTarget(res.Record.ID), err)
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	p.Publish(EventCreated, Notice{ServerID: c.ServerID, UserID: c.UserID, IDs: []int64{res.Record.ID}})
	_, err = renderCreated(res, p.svc.Location()).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdUpdate(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return p.usage(ctx, req)
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	in, err := updateInput(req)
	if err != nil {
		return p.replyErr(ctx, req, err)
	}

	c := callerOf(req)
	rec, err := p.svc.Update(ctx, c, id, in)
	p.audit(ctx, req, "update", auditTarget(id), err)
	if err != nil {
		return p.replyErr(ctx, req, withID(err, id))
	}
	p.Publish(EventUpdated, Notice{ServerID: c.ServerID, UserID: c.UserID, IDs: []int64{id}})
	_, err = renderUpdated(rec, p.svc.Location()).Send(ctx, req.Adapter, req.Chat)
	return err
}

// updateInput reads the optional --flags of /update. Unparsable numbers
// are rejected before the service sees anything.
func updateInput(req *router.Request) (schedule.UpdateInput, error) {
	var in schedule.UpdateInput
	if v, ok := req.Flag("message"); ok {
		in.Message = &v
	}
	if v, ok := req.Flag("channel"); ok {
		id, err := parseChannel(v, req.Chat.ChatID)
		if err != nil {
			return in, err
		}
		in.ChannelID = &id
	}
	ints := []struct {
		name string
		dst  **int
	}{
		{"year", &in.Year},
		{"month", &in.Month},
		{"day", &in.Day},
		{"hour", &in.Hour},
		{"minute", &in.Minute},
	}
	for _, f := range ints {
		v, ok := req.Flag(f.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return in, badArg(f.name, v)
		}
		*f.dst = &n
	}
	if v, ok := req.Flag("interval"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return in, badArg("interval", v)
		}
		in.IntervalMinutes = &n
	}
	return in, nil
}

func (p *Plugin) cmdDelete(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return p.usage(ctx, req)
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	c := callerOf(req)
	rec, err := p.svc.Delete(ctx, c, id)
	p.audit(ctx, req, "delete", auditTarget(id), err)
	if err != nil {
		return p.replyErr(ctx, req, withID(err, id))
	}
	p.Publish(EventDeleted, Notice{ServerID: c.ServerID, UserID: c.UserID, IDs: []int64{id}})
	_, err = renderDeleted(rec).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdList(ctx context.Context, req *router.Request) error {
	views := p.svc.List(ctx, callerOf(req))
	_, err := p.renderList(views, 0).Send(ctx, req.Adapter, req.Chat)
	return err
}

// onListPage edits the list message in place. The caller is whoever
// pressed the button, so nobody can page through someone else's list.
func (p *Plugin) onListPage(ctx context.Context, req *router.Request, payload string) error {
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	page, err := strconv.Atoi(payload)
	if err != nil {
		return nil
	}
	c := schedule.Caller{ServerID: cb.ChatID, UserID: cb.FromID}
	views := p.svc.List(ctx, c)
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	return p.renderList(views, page).Edit(ctx, req.Adapter, ref)
}

func (p *Plugin) cmdInfo(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return p.usage(ctx, req)
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	v, err := p.svc.Info(ctx, callerOf(req), id)
	if err != nil {
		return p.replyErr(ctx, req, withID(err, id))
	}
	_, err = renderInfo(v, p.svc.Location()).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdExport(ctx context.Context, req *router.Request) error {
	c := callerOf(req)
	res, err := p.svc.Export(ctx, c)
	p.audit(ctx, req, "export", strconv.Itoa(res.Document.Info.TotalSchedules), err)
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	_, err = req.Adapter.SendDocument(ctx, req.Chat, kit.Upload{
		FileName: res.FileName,
		MIME:     "application/json",
		Data:     res.Data,
		Caption:  fmt.Sprintf("%d schedule(s) exported", res.Document.Info.TotalSchedules),
	})
	return err
}

func (p *Plugin) cmdImport(ctx context.Context, req *router.Request) error {
	mode, err := schedule.ParseImportMode(firstArg(req.Args))
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	doc := attachedDocument(req.Message())
	if doc == nil {
		return p.replyErr(ctx, req, userf(nil, "attach a .json export with /import as its caption, or reply to one"))
	}
	limit := p.settings().maxImportBytes
	if doc.Size > limit {
		return p.replyErr(ctx, req, userf(nil, "file is too large (%d bytes, max %d)", doc.Size, limit))
	}
	data, err := req.Adapter.DownloadFile(ctx, doc.FileID, limit)
	if err != nil {
		req.Logger.Warn("import download failed", logx.String("file_id", doc.FileID), logx.Err(err))
		return p.replyErr(ctx, req, userf(err, "could not download %s", doc.FileName))
	}

	c := callerOf(req)
	res, err := p.svc.Import(ctx, c, data, mode)
	p.audit(ctx, req, "import", string(mode)+":"+doc.FileName, err)
	if err != nil {
		return p.replyErr(ctx, req, err)
	}
	p.Publish(EventImported, Notice{ServerID: c.ServerID, UserID: c.UserID, IDs: res.IDs})
	_, err = renderImported(res).Send(ctx, req.Adapter, req.Chat)
	return err
}

// attachedDocument prefers a file on the command message itself.
func attachedDocument(m *kit.Message) *kit.Document {
	if m == nil {
		return nil
	}
	if m.Document != nil {
		return m.Document
	}
	if m.ReplyTo != nil {
		return m.ReplyTo.Document
	}
	return nil
}

func (p *Plugin) usage(ctx context.Context, req *router.Request) error {
	cmd := p.lookup(req.Command)
	return req.Reply(ctx, tgui.JoinH("\n",
		tgui.B("usage:"),
		tgui.Code(cmd.Usage),
	).String(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
}

func (p *Plugin) lookup(route string) router.Command {
	for _, c := range p.commands() {
		if c.Route == route {
			return c
		}
	}
	return router.Command{Usage: "/" + route}
}

// replyErr reports err to the user. Only unexpected errors are returned
// to the router for logging.
func (p *Plugin) replyErr(ctx context.Context, req *router.Request, err error) error {
	msg, known := describeErr(err)
	if !known {
		req.Logger.Error("schedule command failed", logx.Err(err))
	}
	if _, sendErr := renderError(msg).Send(ctx, req.Adapter, req.Chat); sendErr != nil {
		return sendErr
	}
	if known {
		return nil
	}
	return err
}

// userErr is an error whose text is safe to show as is.
type userErr struct {
	msg string
	err error
}

func (e *userErr) Error() string { return e.msg }

func (e *userErr) Unwrap() error { return e.err }

func userf(err error, format string, args ...any) error {
	return &userErr{msg: fmt.Sprintf(format, args...), err: err}
}

func withID(err error, id int64) error {
	if errors.Is(err, schedule.ErrNotFound) {
		return userf(err, "schedule #%d not found", id)
	}
	return err
}

func describeErr(err error) (string, bool) {
	var (
		u   *userErr
		imp *schedule.ImportError
	)
	switch {
	case errors.As(err, &u):
		return u.Error(), true
	case errors.Is(err, schedule.ErrValidation):
		return err.Error(), true
	case errors.As(err, &imp):
		return "import failed: " + imp.Error(), true
	case errors.Is(err, schedule.ErrNotFound):
		return "schedule not found", true
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out, try again", true
	default:
		return "internal error", false
	}
}

func badArg(name, v string) error {
	return userf(nil, "invalid %s %q", name, v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badArg("schedule id", s)
	}
	return id, nil
}

// parseChannel accepts a numeric chat id or "here" for the current chat.
func parseChannel(s string, here int64) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "here") {
		return here, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, badArg("channel", s)
	}
	return id, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func auditTarget(id int64) string {
	if id == 0 {
		return ""
	}
	return "#" + strconv.FormatInt(id, 10)
}

func (p *Plugin) audit(ctx context.Context, req *router.Request, action, target string, err error) {
	e := storage.AuditEntry{
		At:        time.Now(),
		RequestID: req.ReqID,
		ActorID:   req.FromID,
		ChatID:    req.Chat.ChatID,
		Action:    action,
		Target:    target,
		OK:        err == nil,
	}
	if m := req.Message(); m != nil {
		e.ActorName = m.DisplayName()
	}
	if err != nil {
		e.Error = err.Error()
	}
	// the command context may be nearly spent; audit gets its own budget
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	p.Audit(actx, e)
}
