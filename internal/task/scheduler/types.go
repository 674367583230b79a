package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/internal/eventbus"
	logx "schedbot/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty = Local
}

// Job is one run of a registered schedule. ctx carries the run timeout.
type Job func(ctx context.Context) error

// Event types published on the bus after every run.
const (
	EventRunFinished = "task.finished"
	EventRunSkipped  = "task.skipped"
)

// RunResult is the Data of task.* events.
type RunResult struct {
	Name    string
	Took    time.Duration
	Err     string
	Skipped bool
}

type entry struct {
	name    string
	spec    string // "@every <d>"
	every   time.Duration
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	running atomic.Bool
	runs    atomic.Uint64
	fails   atomic.Uint64
	skips   atomic.Uint64
	lastErr atomic.Value // string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	c    *cron.Cron
	defs []*entry

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Runs    uint64
	Fails   uint64
	Skips   uint64
	LastErr string
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
