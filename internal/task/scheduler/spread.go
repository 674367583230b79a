package scheduler

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 5 * time.Second

// spreadSchedule is a fixed-interval schedule whose first activation is
// shifted by a random spread. Later activations keep that phase.
type spreadSchedule struct {
	first time.Time
	every time.Duration
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	n := t.Sub(s.first)/s.every + 1
	return s.first.Add(n * s.every)
}

func withStartupSpread(every time.Duration, now time.Time, tag string) cron.Schedule {
	every = max(every.Truncate(time.Second), time.Second)
	spread := min(every, maxStartupSpread)
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewSource(now.UnixNano() ^ int64(h.Sum64())))
	jitter := time.Duration(0)
	if spread > 0 {
		jitter = time.Duration(rng.Int63n(int64(spread)))
	}
	// cron ticks at whole seconds; never schedule in the past
	first := now.Add(jitter).Truncate(time.Second).Add(time.Second)
	return &spreadSchedule{first: first, every: every}
}
