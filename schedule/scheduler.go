// Package schedule adds timed task admission on top of a covey pool:
// one-shot delays, fixed-rate and fixed-delay repetition, and
// cron-expression triggers.
//
// Fixed-rate anchors the next firing to the previous *scheduled* time, so a
// slow run is followed back-to-back by the next one (never concurrently);
// fixed-delay anchors to the previous run's *completion*, so a slow run
// pushes everything later. Whether fixed-rate catches up on missed firings
// or skips them is configurable via WithMissedFirings.
package schedule

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/haldre/covey"
)

// Errors returned by the scheduler.
var (
	ErrClosed        = errors.New("schedule: scheduler is closed")
	ErrInvalidDelay  = errors.New("schedule: delay must not be negative")
	ErrInvalidPeriod = errors.New("schedule: period must be positive")
	ErrNilTask       = errors.New("schedule: task is nil")
)

// MissedFirings selects how fixed-rate entries behave when execution falls
// behind the schedule.
type MissedFirings int

const (
	// CatchUp fires missed executions immediately, back-to-back, until
	// the schedule has caught up. The default.
	CatchUp MissedFirings = iota
	// Skip drops missed firings and resumes at the next future slot.
	Skip
)

// Scheduler plans future task admissions for a pool. A single timer loop
// watches a min-heap of entries and hands due tasks to the pool's normal
// dispatch path.
type Scheduler struct {
	pool   *covey.Pool
	logger *zap.Logger

	missed    MissedFirings
	driftWarn time.Duration

	mu      sync.Mutex
	entries entryHeap
	closed  bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger for scheduler events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMissedFirings sets the policy for fixed-rate entries that fall behind.
func WithMissedFirings(p MissedFirings) Option {
	return func(s *Scheduler) { s.missed = p }
}

// WithDriftWarning sets the lateness beyond which a firing is logged as
// schedule drift. Defaults to 500ms.
func WithDriftWarning(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.driftWarn = d
		}
	}
}

// New creates a scheduler on top of pool and starts its timer loop.
func New(pool *covey.Pool, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		pool:      pool,
		logger:    zap.NewNop(),
		driftWarn: 500 * time.Millisecond,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	heap.Init(&s.entries)
	go s.loop()
	return s
}

// Schedule admits fn to the pool once, after delay.
func (s *Scheduler) Schedule(fn covey.Func, delay time.Duration) (*Entry, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if delay < 0 {
		return nil, ErrInvalidDelay
	}
	e := newEntry(modeOneShot, fn, 0)
	return e, s.add(e, time.Now().Add(delay))
}

// AtFixedRate fires fn after initialDelay and then every period, anchored
// to the previous scheduled time. Runs of the same entry never overlap;
// when a run outlasts the period, the next run starts immediately after it.
func (s *Scheduler) AtFixedRate(fn covey.Func, initialDelay, period time.Duration) (*Entry, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if initialDelay < 0 {
		return nil, ErrInvalidDelay
	}
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	e := newEntry(modeFixedRate, fn, period)
	return e, s.add(e, time.Now().Add(initialDelay))
}

// WithFixedDelay fires fn after initialDelay, and thereafter delay after
// each run's completion.
func (s *Scheduler) WithFixedDelay(fn covey.Func, initialDelay, delay time.Duration) (*Entry, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if initialDelay < 0 {
		return nil, ErrInvalidDelay
	}
	if delay <= 0 {
		return nil, ErrInvalidPeriod
	}
	e := newEntry(modeFixedDelay, fn, delay)
	return e, s.add(e, time.Now().Add(initialDelay))
}

// Cron fires fn on a standard five-field cron expression. Like the other
// repeat modes, executions of one entry never overlap; a slot that arrives
// while the previous run is still executing is skipped.
func (s *Scheduler) Cron(expr string, fn covey.Func) (*Entry, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	e := newEntry(modeCron, fn, 0)
	e.sched = sched
	return e, s.add(e, sched.Next(time.Now()))
}

// Close stops the timer loop. No further firings happen; a firing already
// handed to the pool is unaffected. It does not shut the pool down.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

// Len returns the number of entries awaiting a future firing.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

func (s *Scheduler) add(e *Entry, at time.Time) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	e.nextAt = at
	heap.Push(&s.entries, e)
	first := e.index == 0
	s.mu.Unlock()

	if first {
		s.kick()
	}
	s.logger.Debug("schedule entry added",
		zap.String("entry_id", e.id),
		zap.String("mode", e.mode.String()),
		zap.Time("next_at", at))
	return nil
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait, due := s.collectDue()
		for _, e := range due {
			s.fire(e)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.ctx.Done():
			return
		}
	}
}

// collectDue pops every entry whose firing time has arrived and returns how
// long the loop should sleep until the next one.
func (s *Scheduler) collectDue() (time.Duration, []*Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Entry
	now := time.Now()
	for {
		e := s.entries.peek()
		if e == nil {
			return time.Hour, due
		}
		if e.cancelled.Load() {
			heap.Pop(&s.entries)
			continue
		}
		if e.nextAt.After(now) {
			return e.nextAt.Sub(now), due
		}
		heap.Pop(&s.entries)
		due = append(due, e)
	}
}

// fire hands one due entry to the pool. Repeating entries are rescheduled
// only after the run completes, which is what keeps executions of the same
// entry from overlapping.
func (s *Scheduler) fire(e *Entry) {
	if e.cancelled.Load() {
		return
	}
	plannedAt := e.nextAt
	if drift := time.Since(plannedAt); drift > s.driftWarn {
		s.logger.Warn("schedule drift",
			zap.String("entry_id", e.id),
			zap.String("mode", e.mode.String()),
			zap.Duration("drift", drift))
	}

	e.runs.Add(1)
	h, err := s.pool.Submit(e.fn)
	if err != nil {
		s.logger.Warn("scheduled task not admitted",
			zap.String("entry_id", e.id),
			zap.Error(err))
		if errors.Is(err, covey.ErrPoolShutdown) {
			e.cancelled.Store(true)
			return
		}
		// Rejected by a saturated pool: keep the schedule alive.
		s.reschedule(e, plannedAt)
		return
	}
	// Reschedule strictly after the run completes, however it completes.
	// This is what keeps executions of one entry from overlapping, and it
	// keeps the schedule alive when a firing is discarded unexecuted.
	go func() {
		<-h.Done()
		s.reschedule(e, plannedAt)
	}()
}

// reschedule plans the next firing of a repeating entry after a run (or a
// rejected admission) finished.
func (s *Scheduler) reschedule(e *Entry, plannedAt time.Time) {
	if e.mode == modeOneShot || e.cancelled.Load() {
		return
	}

	now := time.Now()
	var next time.Time
	switch e.mode {
	case modeFixedRate:
		next = plannedAt.Add(e.period)
		if s.missed == Skip {
			for !next.After(now) {
				next = next.Add(e.period)
			}
		}
	case modeFixedDelay:
		next = now.Add(e.period)
	case modeCron:
		next = e.sched.Next(now)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	e.nextAt = next
	heap.Push(&s.entries, e)
	s.mu.Unlock()
	s.kick()
}
