package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "schedbot/pkg/logx"
)

// AddInterval runs job every interval. The first run happens after a short
// random spread so jobs registered together do not fire in lockstep.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.register(&entry{name: name, spec: "@every " + every.String(), every: every, timeout: timeout, job: job})
}

func (s *Service) register(d *entry) (string, error) {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return "", errors.New("name required")
	}
	if d.job == nil {
		return "", errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// upsert by name so config reloads never duplicate a job
	s.removeLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
	}
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout))
	return d.name, nil
}

// Remove unregisters name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	for i := n; i < len(s.defs); i++ {
		s.defs[i] = nil
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *entry) {
	job := cron.FuncJob(func() { s.run(d) })
	d.entryID = s.c.Schedule(withStartupSpread(d.every, time.Now().In(s.loc), d.name), job)
}

// run executes one trigger of d on the cron goroutine. Overlapping
// triggers are skipped.
func (s *Service) run(d *entry) {
	if !d.running.CompareAndSwap(false, true) {
		d.skips.Add(1)
		s.log.Debug("previous run still in flight; skipping", logx.String("name", d.name))
		s.publish(EventRunSkipped, RunResult{Name: d.name, Skipped: true})
		return
	}
	defer d.running.Store(false)

	// Add under mu so Stop never waits on a counter that can still grow.
	s.mu.Lock()
	parent := s.runCtx
	if s.runCancel == nil || parent == nil || parent.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, d.job)
	took := time.Since(start)
	d.runs.Add(1)

	res := RunResult{Name: d.name, Took: took}
	if err != nil {
		d.fails.Add(1)
		d.lastErr.Store(err.Error())
		res.Err = err.Error()
		s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
	} else {
		d.lastErr.Store("")
		s.log.Trace("scheduled job done", logx.String("name", d.name), logx.Duration("took", took))
	}
	s.publish(EventRunFinished, res)
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job(ctx)
}
