package schedule

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haldre/covey"
)

type triggerMode int

const (
	modeOneShot triggerMode = iota
	modeFixedRate
	modeFixedDelay
	modeCron
)

func (m triggerMode) String() string {
	switch m {
	case modeOneShot:
		return "one_shot"
	case modeFixedRate:
		return "fixed_rate"
	case modeFixedDelay:
		return "fixed_delay"
	case modeCron:
		return "cron"
	}
	return "unknown"
}

// Entry is the handle to one schedule: a task plus its trigger metadata.
// Executions of the same entry never overlap; the next firing is only
// planned once the previous run has completed.
type Entry struct {
	id   string
	mode triggerMode
	fn   covey.Func

	// period is the rate period (fixed-rate), the completion-to-start gap
	// (fixed-delay), or unused (one-shot, cron).
	period time.Duration
	sched  cron.Schedule // cron mode only

	// nextAt and index are owned by the scheduler's heap lock.
	nextAt time.Time
	index  int

	cancelled atomic.Bool
	runs      atomic.Int64
}

func newEntry(mode triggerMode, fn covey.Func, period time.Duration) *Entry {
	return &Entry{
		id:     uuid.NewString(),
		mode:   mode,
		fn:     fn,
		period: period,
		index:  -1,
	}
}

// ID returns the unique identifier of the schedule entry.
func (e *Entry) ID() string { return e.id }

// Cancel stops all future firings of the entry. A firing already handed to
// the pool is not retroactively cancelled. Cancel is idempotent; it reports
// whether this call was the one that cancelled the entry.
func (e *Entry) Cancel() bool {
	return e.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether the entry was cancelled.
func (e *Entry) Cancelled() bool { return e.cancelled.Load() }

// Runs returns how many firings have been dispatched so far.
func (e *Entry) Runs() int64 { return e.runs.Load() }

// entryHeap is a min-heap of entries ordered by next firing time,
// satisfying heap.Interface.
type entryHeap []*Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].nextAt.Before(h[j].nextAt) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h entryHeap) peek() *Entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
