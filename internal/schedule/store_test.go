package schedule

import (
	"sync"
	"testing"
	"time"
)

func TestStoreCreateAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a := s.Create(1, 10, 100, "a", 1000, 60)
	b := s.Create(1, 10, 100, "b", 1000, 60)
	if a != 1 || b != 2 {
		t.Fatalf("ids = %d,%d, want 1,2", a, b)
	}
	if _, ok := s.Delete(b, 1, 100); !ok {
		t.Fatal("delete failed")
	}
	c := s.Create(1, 10, 100, "c", 1000, 60)
	if c != 3 {
		t.Fatalf("id after delete = %d, want 3 (ids are never reused)", c)
	}
	r, ok := s.FindOwned(c, 1, 100)
	if !ok {
		t.Fatal("FindOwned returned false")
	}
	if r.LastRunAt != 0 || r.Revision != 1 {
		t.Fatalf("new record = %+v, want LastRunAt 0 and Revision 1", r)
	}
}

func TestStoreScoping(t *testing.T) {
	t.Parallel()
	s := NewStore()
	mine := s.Create(1, 10, 100, "mine", 1000, 60)
	s.Create(1, 10, 200, "other user", 1000, 60)
	s.Create(2, 20, 100, "other server", 1000, 60)

	got := s.ListFor(1, 100)
	if len(got) != 1 || got[0].ID != mine {
		t.Fatalf("ListFor = %+v, want only id %d", got, mine)
	}
	if _, ok := s.FindOwned(mine, 1, 200); ok {
		t.Fatal("FindOwned by another user should fail")
	}
	if _, ok := s.FindOwned(mine, 2, 100); ok {
		t.Fatal("FindOwned from another server should fail")
	}
	if _, ok := s.Delete(mine, 1, 200); ok {
		t.Fatal("Delete by another user should fail")
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
}

func TestStoreUpdateResetsLastRunOnReschedule(t *testing.T) {
	t.Parallel()
	s := NewStore()
	id := s.Create(1, 10, 100, "msg", 1000, 60)
	if !s.MarkRun(id, 1, 1500) {
		t.Fatal("MarkRun failed")
	}

	msg := "changed"
	r, ok := s.Update(id, 1, 100, Changes{Message: &msg})
	if !ok {
		t.Fatal("Update failed")
	}
	if r.LastRunAt != 1500 {
		t.Fatalf("LastRunAt = %d, want 1500 (message-only edit keeps progress)", r.LastRunAt)
	}

	first := int64(5000)
	r, _ = s.Update(id, 1, 100, Changes{FirstRunAt: &first})
	if r.LastRunAt != 0 || r.FirstRunAt != 5000 {
		t.Fatalf("after reschedule = %+v, want FirstRunAt 5000 LastRunAt 0", r)
	}
	if r.Revision != 2 {
		t.Fatalf("Revision = %d, want 2 (only the reschedule bumps it)", r.Revision)
	}
}

func TestStoreMarkRunRespectsRevision(t *testing.T) {
	t.Parallel()
	s := NewStore()
	id := s.Create(1, 10, 100, "msg", 1000, 60)
	snap := s.Due(time.Unix(1000, 0))
	if len(snap) != 1 {
		t.Fatalf("Due = %d, want 1", len(snap))
	}

	first := int64(9000)
	s.Update(id, 1, 100, Changes{FirstRunAt: &first})
	if s.MarkRun(id, snap[0].Revision, 1000) {
		t.Fatal("MarkRun with stale revision should be rejected")
	}
	r, _ := s.FindOwned(id, 1, 100)
	if r.LastRunAt != 0 {
		t.Fatalf("LastRunAt = %d, want 0", r.LastRunAt)
	}

	s.Delete(id, 1, 100)
	if s.MarkRun(id, r.Revision, 1000) {
		t.Fatal("MarkRun on deleted record should be rejected")
	}
}

func TestStoreMarkRunSurvivesContentEdit(t *testing.T) {
	t.Parallel()
	s := NewStore()
	id := s.Create(1, 10, 100, "msg", 1000, 60)
	snap := s.Due(time.Unix(1000, 0))

	msg, ch, every := "edited", int64(11), int64(120)
	s.Update(id, 1, 100, Changes{Message: &msg, ChannelID: &ch, IntervalSeconds: &every})
	if !s.MarkRun(id, snap[0].Revision, 1000) {
		t.Fatal("MarkRun rejected after a content-only edit")
	}
	r, _ := s.FindOwned(id, 1, 100)
	if r.LastRunAt != 1000 || r.Message != "edited" || r.IntervalSeconds != 120 {
		t.Fatalf("record = %+v, want LastRunAt 1000 with the edit kept", r)
	}
}

func TestStoreReplaceAllFor(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Create(1, 10, 100, "old1", 1000, 60)
	s.Create(1, 10, 100, "old2", 1000, 60)
	keep := s.Create(1, 10, 200, "someone else", 1000, 60)

	ids, removed := s.ReplaceAllFor(1, 100, []Record{
		{ID: 99, ChannelID: 10, Message: "new", FirstRunAt: 2000, IntervalSeconds: 120, LastRunAt: 2100},
	})
	if len(ids) != 1 || ids[0] != 4 {
		t.Fatalf("ids = %v, want [4]", ids)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	got := s.ListFor(1, 100)
	if len(got) != 1 || got[0].Message != "new" || got[0].LastRunAt != 2100 {
		t.Fatalf("ListFor = %+v", got)
	}
	if got[0].ServerID != 1 || got[0].UserID != 100 {
		t.Fatalf("owner = (%d,%d), want (1,100)", got[0].ServerID, got[0].UserID)
	}
	if _, ok := s.FindOwned(keep, 1, 200); !ok {
		t.Fatal("other user's record was removed")
	}
}

func TestRecordDue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  Record
		now  int64
		want bool
	}{
		{name: "before first", rec: Record{FirstRunAt: 1000, IntervalSeconds: 60}, now: 999, want: false},
		{name: "at first", rec: Record{FirstRunAt: 1000, IntervalSeconds: 60}, now: 1000, want: true},
		{name: "interval not elapsed", rec: Record{FirstRunAt: 1000, IntervalSeconds: 60, LastRunAt: 1000}, now: 1059, want: false},
		{name: "interval elapsed", rec: Record{FirstRunAt: 1000, IntervalSeconds: 60, LastRunAt: 1000}, now: 1060, want: true},
		{name: "first ignored once run", rec: Record{FirstRunAt: 5000, IntervalSeconds: 60, LastRunAt: 1000}, now: 1060, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.IsDue(time.Unix(tt.now, 0)); got != tt.want {
				t.Fatalf("IsDue(%d) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestRecordNextRunAt(t *testing.T) {
	t.Parallel()
	if got := (Record{FirstRunAt: 100, IntervalSeconds: 60}).NextRunAt(); got != 100 {
		t.Fatalf("NextRunAt = %d, want 100", got)
	}
	if got := (Record{FirstRunAt: 100, IntervalSeconds: 60, LastRunAt: 400}).NextRunAt(); got != 460 {
		t.Fatalf("NextRunAt = %d, want 460", got)
	}
}

func TestStoreConcurrentCreate(t *testing.T) {
	t.Parallel()
	s := NewStore()
	var wg sync.WaitGroup
	ids := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.Create(1, 10, 100, "x", 1000, 60)
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 100 {
		t.Fatalf("unique ids = %d, want 100", len(seen))
	}
}
