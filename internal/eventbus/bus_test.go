package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	sched, unsubSched := b.Subscribe(4, "schedule.")
	defer unsubSched()

	b.Publish(Event{Type: "task.finished"})
	b.Publish(Event{Type: "schedule.delivered", Data: 7})

	if got := (<-all).Type; got != "task.finished" {
		t.Fatalf("first event = %q, want task.finished", got)
	}
	if got := (<-all).Type; got != "schedule.delivered" {
		t.Fatalf("second event = %q, want schedule.delivered", got)
	}
	ev := <-sched
	if ev.Type != "schedule.delivered" || ev.Data != 7 || ev.Time.IsZero() {
		t.Fatalf("filtered event = %+v", ev)
	}
	select {
	case ev := <-sched:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	b.Publish(Event{Type: "c"})
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped = %d, want 2", got)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: "after"})
}

func TestConcurrentPublishUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unsub := b.Subscribe(1)
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: "x"})
	}
	wg.Wait()
}
