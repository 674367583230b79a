package schedule

import "time"

// MaxMessageRunes is the longest message a schedule may carry.
const MaxMessageRunes = 2000

// MaxIntervalMinutes caps the recurrence at roughly a century so that
// LastRunAt + IntervalSeconds never overflows.
const (
	MaxIntervalMinutes = 100 * 366 * 24 * 60
	MaxIntervalSeconds = MaxIntervalMinutes * 60
)

// Record is one recurring-message definition owned by a user in a server.
//
// Times are unix seconds. LastRunAt == 0 means the record has never been
// delivered.
type Record struct {
	ID              int64
	ServerID        int64
	ChannelID       int64
	UserID          int64
	Message         string
	FirstRunAt      int64
	IntervalSeconds int64
	LastRunAt       int64

	// Revision is bumped when the record is rescheduled (FirstRunAt
	// changes). A tick only records a delivery when the revision it
	// observed is still current; content edits keep it.
	Revision uint64
}

// NextRunAt is the time the record becomes due next.
func (r Record) NextRunAt() int64 {
	if r.LastRunAt == 0 {
		return r.FirstRunAt
	}
	return r.LastRunAt + r.IntervalSeconds
}

// IsDue reports whether the record should be delivered at now.
func (r Record) IsDue(now time.Time) bool {
	ts := now.Unix()
	if r.LastRunAt == 0 {
		return ts >= r.FirstRunAt
	}
	return ts >= r.LastRunAt+r.IntervalSeconds
}

func (r Record) ownedBy(serverID, userID int64) bool {
	return r.ServerID == serverID && r.UserID == userID
}
