package schedule

import (
	"sync"
	"time"
)

// Store keeps schedule records in memory.
//
// All methods are safe for concurrent use. Records returned to callers are
// copies; mutations go through Update, Delete, ReplaceAllFor and MarkRun.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

func NewStore() *Store {
	return &Store{nextID: 1}
}

// Create appends a new record with LastRunAt = 0 and returns its id.
// Ids are never reused, even after Delete.
func (s *Store) Create(serverID, channelID, userID int64, message string, firstRunAt, intervalSeconds int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(Record{
		ServerID:        serverID,
		ChannelID:       channelID,
		UserID:          userID,
		Message:         message,
		FirstRunAt:      firstRunAt,
		IntervalSeconds: intervalSeconds,
	})
}

func (s *Store) appendLocked(r Record) int64 {
	if s.nextID <= 0 {
		s.nextID = 1
	}
	r.ID = s.nextID
	s.nextID++
	r.Revision = 1
	s.records = append(s.records, r)
	return r.ID
}

// ListFor returns the records owned by (serverID, userID) in insertion order.
func (s *Store) ListFor(serverID, userID int64) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, 4)
	for _, r := range s.records {
		if r.ownedBy(serverID, userID) {
			out = append(out, r)
		}
	}
	return out
}

// FindOwned looks up id within the (serverID, userID) scope. A record that
// exists but belongs to someone else is reported as not found.
func (s *Store) FindOwned(id, serverID, userID int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOwnedLocked(id, serverID, userID)
	if i < 0 {
		return Record{}, false
	}
	return s.records[i], true
}

func (s *Store) indexOwnedLocked(id, serverID, userID int64) int {
	for i := range s.records {
		if s.records[i].ID == id && s.records[i].ownedBy(serverID, userID) {
			return i
		}
	}
	return -1
}

// Changes lists the fields an Update may touch. Nil means unchanged.
type Changes struct {
	Message         *string
	ChannelID       *int64
	FirstRunAt      *int64
	IntervalSeconds *int64
}

func (c Changes) Empty() bool {
	return c.Message == nil && c.ChannelID == nil && c.FirstRunAt == nil && c.IntervalSeconds == nil
}

// Update applies ch to the owned record and returns the updated copy.
// Changing FirstRunAt resets LastRunAt to 0.
func (s *Store) Update(id, serverID, userID int64, ch Changes) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOwnedLocked(id, serverID, userID)
	if i < 0 {
		return Record{}, false
	}
	r := &s.records[i]
	if ch.Message != nil {
		r.Message = *ch.Message
	}
	if ch.ChannelID != nil {
		r.ChannelID = *ch.ChannelID
	}
	if ch.FirstRunAt != nil {
		r.FirstRunAt = *ch.FirstRunAt
		r.LastRunAt = 0
		r.Revision++
	}
	if ch.IntervalSeconds != nil {
		r.IntervalSeconds = *ch.IntervalSeconds
	}
	return *r, true
}

// Delete removes the owned record and returns what was removed.
func (s *Store) Delete(id, serverID, userID int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOwnedLocked(id, serverID, userID)
	if i < 0 {
		return Record{}, false
	}
	r := s.records[i]
	s.records = append(s.records[:i], s.records[i+1:]...)
	return r, true
}

// ReplaceAllFor removes every record owned by (serverID, userID) and appends
// recs in one critical section. Ids in recs are ignored and reassigned. It
// returns the new ids and the number of records removed.
func (s *Store) ReplaceAllFor(serverID, userID int64, recs []Record) ([]int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if !r.ownedBy(serverID, userID) {
			kept = append(kept, r)
		}
	}
	// clear the tail so removed records are not retained by the backing array
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = Record{}
	}
	removed := len(s.records) - len(kept)
	s.records = kept
	return s.appendAllLocked(serverID, userID, recs), removed
}

// Append inserts recs for (serverID, userID) in one critical section.
func (s *Store) Append(serverID, userID int64, recs []Record) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAllLocked(serverID, userID, recs)
}

func (s *Store) appendAllLocked(serverID, userID int64, recs []Record) []int64 {
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		r.ServerID = serverID
		r.UserID = userID
		ids = append(ids, s.appendLocked(r))
	}
	return ids
}

// Due returns a snapshot of the records due at now, in store order.
func (s *Store) Due(now time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.IsDue(now) {
			out = append(out, r)
		}
	}
	return out
}

// MarkRun records a successful delivery. It is a no-op (returns false) when
// the record was deleted or rescheduled since revision was observed.
func (s *Store) MarkRun(id int64, revision uint64, at int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if s.records[i].Revision != revision {
			return false
		}
		s.records[i].LastRunAt = at
		return true
	}
	return false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
