package schedule

import (
	"bytes"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// ExportDocument is the JSON shape produced by Export and accepted by Import.
type ExportDocument struct {
	Info      ExportInfo    `json:"export_info"`
	Schedules []ExportEntry `json:"schedules"`
}

type ExportInfo struct {
	UserID         int64  `json:"user_id"`
	Username       string `json:"username"`
	GuildID        int64  `json:"guild_id"`
	ExportDate     string `json:"export_date"`
	TotalSchedules int    `json:"total_schedules"`
}

type ExportEntry struct {
	ID       int64  `json:"id"`
	Channel  int64  `json:"channel"`
	Message  string `json:"message"`
	Date     int64  `json:"date"`
	Interval int64  `json:"interval"`
	Last     int64  `json:"last"`
}

func buildExport(c Caller, recs []Record, at time.Time) ExportDocument {
	doc := ExportDocument{
		Info: ExportInfo{
			UserID:         c.UserID,
			Username:       c.DisplayName,
			GuildID:        c.ServerID,
			ExportDate:     at.Format(time.RFC3339),
			TotalSchedules: len(recs),
		},
		Schedules: make([]ExportEntry, 0, len(recs)),
	}
	for _, r := range recs {
		doc.Schedules = append(doc.Schedules, ExportEntry{
			ID:       r.ID,
			Channel:  r.ChannelID,
			Message:  r.Message,
			Date:     r.FirstRunAt,
			Interval: r.IntervalSeconds,
			Last:     r.LastRunAt,
		})
	}
	return doc
}

// SkipReason says why an import entry was not inserted.
type SkipReason string

const (
	SkipMalformed    SkipReason = "malformed"
	SkipMissingField SkipReason = "missing_field"
	SkipInvalidValue SkipReason = "invalid_value"
	SkipChannel      SkipReason = "channel_unavailable"
	SkipStale        SkipReason = "stale"
)

// maxUnix is 9999-12-31T23:59:59Z; later timestamps are rejected.
const maxUnix = 253402300799

// importEntry is a decoded entry that passed the shape checks.
type importEntry struct {
	Channel  int64
	Message  string
	Date     int64
	Interval int64
	Last     int64
}

type rawEntry struct {
	Channel  *int64  `json:"channel"`
	Message  *string `json:"message"`
	Date     *int64  `json:"date"`
	Interval *int64  `json:"interval"`
	Last     *int64  `json:"last"`
}

// decodeImport parses the document. Structural problems return an
// *ImportError; per-entry problems are counted per reason.
func decodeImport(data []byte) ([]importEntry, map[SkipReason]int, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, &ImportError{Reason: "document is not a JSON object", Err: err}
	}
	raw, ok := top["schedules"]
	if !ok {
		return nil, nil, &ImportError{Reason: "document has no schedules list"}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil, &ImportError{Reason: "schedules is not a list"}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, &ImportError{Reason: "schedules is not a list", Err: err}
	}

	entries := make([]importEntry, 0, len(items))
	skips := map[SkipReason]int{}
	for _, it := range items {
		e, reason := decodeEntry(it)
		if reason != "" {
			skips[reason]++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skips, nil
}

func decodeEntry(b json.RawMessage) (importEntry, SkipReason) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return importEntry{}, SkipMalformed
	}
	var r rawEntry
	if err := json.Unmarshal(b, &r); err != nil {
		return importEntry{}, SkipMalformed
	}
	if r.Channel == nil || r.Message == nil || r.Date == nil || r.Interval == nil {
		return importEntry{}, SkipMissingField
	}
	if *r.Interval <= 0 || *r.Interval > MaxIntervalSeconds || *r.Date <= 0 || *r.Date > maxUnix {
		return importEntry{}, SkipInvalidValue
	}
	if *r.Message == "" || utf8.RuneCountInString(*r.Message) > MaxMessageRunes {
		return importEntry{}, SkipInvalidValue
	}
	e := importEntry{
		Channel:  *r.Channel,
		Message:  *r.Message,
		Date:     *r.Date,
		Interval: *r.Interval,
	}
	if r.Last != nil {
		if *r.Last < 0 || *r.Last > maxUnix {
			return importEntry{}, SkipInvalidValue
		}
		e.Last = *r.Last
	}
	return e, ""
}
