package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	logx "schedbot/pkg/logx"
)

const defaultDeliveryTimeout = 10 * time.Second

// Service implements the schedule commands and the delivery tick on top of a Store.
type Service struct {
	store    *Store
	resolver ChannelResolver
	sender   Sender
	log      logx.Logger

	mu       sync.RWMutex
	clock    Clock
	loc      *time.Location
	timeout  time.Duration
	observer func(DeliveryEvent)
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDeliveryTimeout bounds each channel lookup and each send.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver registers a callback invoked after every delivery attempt.
// It must not block.
func WithObserver(fn func(DeliveryEvent)) Option {
	return func(s *Service) { s.observer = fn }
}

func NewService(store *Store, resolver ChannelResolver, sender Sender, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if store == nil {
		store = NewStore()
	}
	s := &Service{
		store:    store,
		resolver: resolver,
		sender:   sender,
		log:      log,
		clock:    time.Now,
		loc:      time.Local,
		timeout:  defaultDeliveryTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Store() *Store { return s.store }

// Reconfigure swaps the location and delivery timeout at runtime.
func (s *Service) Reconfigure(loc *time.Location, deliveryTimeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc != nil {
		s.loc = loc
	}
	if deliveryTimeout > 0 {
		s.timeout = deliveryTimeout
	}
}

func (s *Service) now() time.Time {
	s.mu.RLock()
	c := s.clock
	s.mu.RUnlock()
	return c()
}

func (s *Service) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

func (s *Service) deliveryTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeout
}

// ---- Create ----

type CreateInput struct {
	ChannelID       int64
	Message         string
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	IntervalMinutes int64
}

type CreateResult struct {
	Record  Record
	Channel Channel
}

func (s *Service) Create(ctx context.Context, c Caller, in CreateInput) (CreateResult, error) {
	if err := validateMessage(in.Message); err != nil {
		return CreateResult{}, err
	}
	interval, err := intervalSeconds(in.IntervalMinutes)
	if err != nil {
		return CreateResult{}, err
	}
	loc := s.Location()
	at, err := parseDateTime(in.Date, in.Time, loc)
	if err != nil {
		return CreateResult{}, err
	}
	if at.Unix() < s.now().Unix() {
		return CreateResult{}, invalid("past time: the first run must not be in the past")
	}
	ch, err := s.ownChannel(ctx, c, in.ChannelID)
	if err != nil {
		return CreateResult{}, err
	}

	id := s.store.Create(c.ServerID, ch.ID, c.UserID, in.Message, at.Unix(), interval)
	rec, _ := s.store.FindOwned(id, c.ServerID, c.UserID)
	s.log.Info("schedule created",
		logx.Int64("id", id),
		logx.Int64("server_id", c.ServerID),
		logx.Int64("user_id", c.UserID),
		logx.Int64("channel_id", ch.ID),
		logx.Int64("interval_s", rec.IntervalSeconds),
	)
	return CreateResult{Record: rec, Channel: ch}, nil
}

// ---- Update ----

// UpdateInput carries optional fields. The date group (Year, Month, Day,
// Hour) only applies when all four are set; Minute defaults to 0.
type UpdateInput struct {
	Message         *string
	ChannelID       *int64
	Year            *int
	Month           *int
	Day             *int
	Hour            *int
	Minute          *int
	IntervalMinutes *int64
}

func (in UpdateInput) hasDateGroup() bool {
	return in.Year != nil && in.Month != nil && in.Day != nil && in.Hour != nil
}

func (s *Service) Update(ctx context.Context, c Caller, id int64, in UpdateInput) (Record, error) {
	if _, ok := s.store.FindOwned(id, c.ServerID, c.UserID); !ok {
		return Record{}, ErrNotFound
	}

	var ch Changes
	if in.Message != nil {
		if err := validateMessage(*in.Message); err != nil {
			return Record{}, err
		}
		msg := *in.Message
		ch.Message = &msg
	}
	if in.ChannelID != nil {
		target, err := s.ownChannel(ctx, c, *in.ChannelID)
		if err != nil {
			return Record{}, err
		}
		cid := target.ID
		ch.ChannelID = &cid
	}
	if in.hasDateGroup() {
		minute := 0
		if in.Minute != nil {
			minute = *in.Minute
		}
		at, err := dateFromParts(*in.Year, *in.Month, *in.Day, *in.Hour, minute, s.Location())
		if err != nil {
			return Record{}, err
		}
		if at.Unix() < s.now().Unix() {
			return Record{}, invalid("past time: the new run time must not be in the past")
		}
		ts := at.Unix()
		ch.FirstRunAt = &ts
	}
	if in.IntervalMinutes != nil {
		secs, err := intervalSeconds(*in.IntervalMinutes)
		if err != nil {
			return Record{}, err
		}
		ch.IntervalSeconds = &secs
	}
	if ch.Empty() {
		return Record{}, invalid("nothing to update")
	}

	rec, ok := s.store.Update(id, c.ServerID, c.UserID, ch)
	if !ok {
		return Record{}, ErrNotFound
	}
	s.log.Info("schedule updated", logx.Int64("id", id), logx.Int64("user_id", c.UserID), logx.Bool("reschedule", ch.FirstRunAt != nil))
	return rec, nil
}

// ---- Delete ----

func (s *Service) Delete(ctx context.Context, c Caller, id int64) (Record, error) {
	_ = ctx
	rec, ok := s.store.Delete(id, c.ServerID, c.UserID)
	if !ok {
		return Record{}, ErrNotFound
	}
	s.log.Info("schedule deleted", logx.Int64("id", id), logx.Int64("user_id", c.UserID))
	return rec, nil
}

// ---- List / Info ----

// View is a record plus display details.
type View struct {
	Record
	ChannelName string
	NextRunAt   int64
}

func (s *Service) List(ctx context.Context, c Caller) []View {
	recs := s.store.ListFor(c.ServerID, c.UserID)
	names := map[int64]string{}
	out := make([]View, 0, len(recs))
	for _, r := range recs {
		name, ok := names[r.ChannelID]
		if !ok {
			name = s.channelName(ctx, r.ChannelID)
			names[r.ChannelID] = name
		}
		out = append(out, View{Record: r, ChannelName: name, NextRunAt: r.NextRunAt()})
	}
	return out
}

func (s *Service) Info(ctx context.Context, c Caller, id int64) (View, error) {
	r, ok := s.store.FindOwned(id, c.ServerID, c.UserID)
	if !ok {
		return View{}, ErrNotFound
	}
	return View{Record: r, ChannelName: s.channelName(ctx, r.ChannelID), NextRunAt: r.NextRunAt()}, nil
}

func (s *Service) channelName(ctx context.Context, id int64) string {
	if s.resolver == nil {
		return ""
	}
	cctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout())
	defer cancel()
	ch, err := s.resolver.ResolveChannel(cctx, id)
	if err != nil {
		return ""
	}
	return ch.Name
}

// ---- Export / Import ----

type ExportResult struct {
	Document ExportDocument
	Data     []byte
	FileName string
}

func (s *Service) Export(ctx context.Context, c Caller) (ExportResult, error) {
	_ = ctx
	now := s.now()
	doc := buildExport(c, s.store.ListFor(c.ServerID, c.UserID), now)
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode export: %w", err)
	}
	name := fmt.Sprintf("schedules_%d_%s.json", c.UserID, now.In(s.Location()).Format("20060102_150405"))
	return ExportResult{Document: doc, Data: b, FileName: name}, nil
}

type ImportMode string

const (
	ImportAdd       ImportMode = "add"
	ImportOverwrite ImportMode = "overwrite"
)

// ParseImportMode accepts "add" (also the empty string) and "overwrite".
func ParseImportMode(raw string) (ImportMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "add", "append":
		return ImportAdd, nil
	case "overwrite", "replace":
		return ImportOverwrite, nil
	default:
		return "", invalid(fmt.Sprintf("unknown import mode %q (use add or overwrite)", raw))
	}
}

type ImportResult struct {
	Mode     ImportMode
	IDs      []int64
	Removed  int
	Skipped  int
	ByReason map[SkipReason]int
}

func (r ImportResult) Imported() int { return len(r.IDs) }

func (s *Service) Import(ctx context.Context, c Caller, data []byte, mode ImportMode) (ImportResult, error) {
	if mode == "" {
		mode = ImportAdd
	}
	if mode != ImportAdd && mode != ImportOverwrite {
		return ImportResult{}, invalid(fmt.Sprintf("unknown import mode %q", mode))
	}
	entries, skips, err := decodeImport(data)
	if err != nil {
		return ImportResult{}, err
	}

	now := s.now().Unix()
	channels := map[int64]bool{}
	recs := make([]Record, 0, len(entries))
	for _, e := range entries {
		if e.Last == 0 && e.Date < now {
			skips[SkipStale]++
			continue
		}
		ok, seen := channels[e.Channel]
		if !seen {
			_, err := s.ownChannel(ctx, c, e.Channel)
			ok = err == nil
			channels[e.Channel] = ok
		}
		if !ok {
			skips[SkipChannel]++
			continue
		}
		recs = append(recs, Record{
			ChannelID:       e.Channel,
			Message:         e.Message,
			FirstRunAt:      e.Date,
			IntervalSeconds: e.Interval,
			LastRunAt:       e.Last,
		})
	}

	res := ImportResult{Mode: mode, ByReason: skips}
	for _, n := range skips {
		res.Skipped += n
	}
	if mode == ImportOverwrite {
		res.IDs, res.Removed = s.store.ReplaceAllFor(c.ServerID, c.UserID, recs)
	} else {
		res.IDs = s.store.Append(c.ServerID, c.UserID, recs)
	}
	s.log.Info("schedules imported",
		logx.String("mode", string(mode)),
		logx.Int64("user_id", c.UserID),
		logx.Int("imported", len(res.IDs)),
		logx.Int("skipped", res.Skipped),
		logx.Int("removed", res.Removed),
	)
	return res, nil
}

// ---- Tick ----

// DeliveryEvent describes one delivery attempt made by Tick.
type DeliveryEvent struct {
	ScheduleID int64
	ChannelID  int64
	At         time.Time
	Err        error
}

type TickReport struct {
	Due       int
	Delivered int
	Failed    int
}

// Tick delivers every due record. Failures are logged and the record stays
// due for the next tick; they are never returned.
func (s *Service) Tick(ctx context.Context) TickReport {
	now := s.now()
	due := s.store.Due(now)
	rep := TickReport{Due: len(due)}
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		err := s.deliver(ctx, r, now)
		if err != nil {
			rep.Failed++
			s.log.Warn("schedule delivery failed",
				logx.Int64("id", r.ID),
				logx.Int64("channel_id", r.ChannelID),
				logx.Err(err),
			)
		} else {
			rep.Delivered++
		}
		s.emit(DeliveryEvent{ScheduleID: r.ID, ChannelID: r.ChannelID, At: now, Err: err})
	}
	if rep.Due > 0 {
		s.log.Debug("tick done", logx.Int("due", rep.Due), logx.Int("delivered", rep.Delivered), logx.Int("failed", rep.Failed))
	}
	return rep
}

func (s *Service) deliver(ctx context.Context, r Record, now time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("panic in schedule delivery", logx.Int64("id", r.ID), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if s.resolver == nil || s.sender == nil {
		return errors.New("delivery not configured")
	}
	timeout := s.deliveryTimeout()

	rctx, cancel := context.WithTimeout(ctx, timeout)
	ch, err := s.resolver.ResolveChannel(rctx, r.ChannelID)
	cancel()
	if err != nil {
		return fmt.Errorf("resolve channel %d: %w", r.ChannelID, err)
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	err = s.sender.SendMessage(sctx, ch.ID, r.Message)
	cancel()
	if err != nil {
		return fmt.Errorf("send to channel %d: %w", ch.ID, err)
	}

	if !s.store.MarkRun(r.ID, r.Revision, now.Unix()) {
		s.log.Debug("schedule changed during delivery; run marker not recorded", logx.Int64("id", r.ID))
	}
	return nil
}

func (s *Service) emit(ev DeliveryEvent) {
	s.mu.RLock()
	fn := s.observer
	s.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// ---- validation helpers ----

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return invalid("message must not be empty")
	}
	if n := utf8.RuneCountInString(msg); n > MaxMessageRunes {
		return invalid(fmt.Sprintf("message is too long (%d characters, max %d)", n, MaxMessageRunes))
	}
	return nil
}

func (s *Service) ownChannel(ctx context.Context, c Caller, channelID int64) (Channel, error) {
	if s.resolver == nil {
		return Channel{}, invalid("channel lookup is not available")
	}
	cctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout())
	defer cancel()
	ch, err := s.resolver.ResolveChannel(cctx, channelID)
	if err != nil {
		return Channel{}, invalid(fmt.Sprintf("channel %d not found", channelID))
	}
	if ch.ServerID != c.ServerID {
		return Channel{}, invalid(fmt.Sprintf("channel %d does not belong to this server", channelID))
	}
	return ch, nil
}

func parseDateTime(date, hm string, loc *time.Location) (time.Time, error) {
	dp := strings.Split(strings.TrimSpace(date), "-")
	if len(dp) != 3 || len(dp[0]) != 4 {
		return time.Time{}, invalid("invalid date, expected YYYY-MM-DD")
	}
	nums := make([]int, 0, 5)
	for _, p := range dp {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, invalid("invalid date, expected YYYY-MM-DD")
		}
		nums = append(nums, n)
	}
	tp := strings.Split(strings.TrimSpace(hm), ":")
	if len(tp) != 2 || len(tp[1]) != 2 || len(tp[0]) == 0 || len(tp[0]) > 2 {
		return time.Time{}, invalid("invalid time, expected HH:MM")
	}
	for _, p := range tp {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, invalid("invalid time, expected HH:MM")
		}
		nums = append(nums, n)
	}
	return dateFromParts(nums[0], nums[1], nums[2], nums[3], nums[4], loc)
}

// dateFromParts builds a local time and rejects components that time.Date
// would silently normalize (for example February 30).
func dateFromParts(year, month, day, hour, minute int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, invalid("invalid date")
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, invalid("invalid time")
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, invalid("invalid date")
	}
	// wall clock skipped by a DST transition
	if t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, invalid("invalid time: it does not exist in " + loc.String())
	}
	return t, nil
}

func intervalSeconds(minutes int64) (int64, error) {
	if minutes <= 0 {
		return 0, invalid("interval must be a positive number of minutes")
	}
	if minutes > MaxIntervalMinutes {
		return 0, invalid(fmt.Sprintf("interval must be at most %d minutes", MaxIntervalMinutes))
	}
	return minutes * 60, nil
}
