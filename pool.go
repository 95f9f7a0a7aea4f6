package covey

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is a pool lifecycle state. Transitions are monotonic: a state is
// never revisited after leaving it.
type State int32

const (
	// StateRunning accepts and executes tasks.
	StateRunning State = iota
	// StateShuttingDown accepts no new tasks but drains queued and
	// running ones.
	StateShuttingDown
	// StateStopping accepts no new tasks, abandons queued tasks and
	// signals cancellation to running ones.
	StateStopping
	// StateTerminated means every worker has exited. Terminal.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Pool is a bounded, elastic worker pool. Submissions are dispatched in
// order of preference: direct handoff to an idle worker, creation of a core
// worker, the task queue, creation of an overflow worker, and finally the
// configured rejection policy. Filling the queue before growing past the
// core count lets buffering absorb transient bursts; sustained bursts still
// get extra workers up to the maximum.
type Pool struct {
	conf  Config
	queue taskQueue

	state        int32 // atomic State
	workerCount  int32 // atomic
	idleCount    int32 // atomic
	nextWorkerID int64 // atomic

	// idleWorkers is the handoff rendezvous: idle workers register here
	// and submitters claim them with a CAS on the worker state. Entries
	// can go stale (the worker took a queued task or retired); claiming
	// skips those.
	idleWorkers chan *worker

	// inflight maps task id to handle for every admitted, uncompleted
	// task, so stopping can cancel running work.
	inflight sync.Map

	shutdownCh   chan struct{} // closed on Shutdown or ShutdownNow
	shutdownOnce sync.Once
	stopCh       chan struct{} // closed on ShutdownNow
	stopOnce     sync.Once
	termCh       chan struct{} // closed on termination
	termOnce     sync.Once

	submitWg sync.WaitGroup
	stats    statsStore
}

// NewPool creates and starts a pool with the given options. Core workers are
// created lazily, on demand.
func NewPool(opts ...Option) (*Pool, error) {
	conf := defaultConfig()
	for _, opt := range opts {
		opt(&conf)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		conf:        conf,
		queue:       newTaskQueue(conf.QueueCapacity),
		idleWorkers: make(chan *worker, conf.MaxWorkers*4),
		shutdownCh:  make(chan struct{}),
		stopCh:      make(chan struct{}),
		termCh:      make(chan struct{}),
	}
	p.storeState(StateRunning)
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	return State(atomic.LoadInt32(&p.state))
}

func (p *Pool) storeState(s State) {
	atomic.StoreInt32(&p.state, int32(s))
}

func (p *Pool) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&p.state, int32(from), int32(to))
}

// Submit admits a task for asynchronous execution and returns its handle.
// It never blocks beyond the dispatch decision itself, except under the
// CallerRuns rejection policy. Submitting after shutdown returns
// ErrPoolShutdown.
func (p *Pool) Submit(fn Func) (*Handle, error) {
	return p.SubmitCtx(context.Background(), fn)
}

// SubmitCtx is Submit with a caller-supplied parent context for the task.
func (p *Pool) SubmitCtx(ctx context.Context, fn Func) (*Handle, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if p.State() != StateRunning {
		return nil, ErrPoolShutdown
	}

	h := newHandle(ctx, p, fn)
	p.submitWg.Add(1)
	p.inflight.Store(h.id, h)
	p.stats.addSubmitted(1)

	// 1. Hand off to an idle worker.
	if p.tryHandoff(h) {
		return h, nil
	}
	// 2. Grow up to the core count.
	if p.tryScale(h, p.conf.CoreWorkers) {
		return h, nil
	}
	// 3. Buffer.
	if p.queue.offer(h) {
		// A queued task needs at least one worker alive to ever run.
		if atomic.LoadInt32(&p.workerCount) == 0 {
			p.tryScale(nil, p.conf.MaxWorkers)
		}
		return h, nil
	}
	// 4. Grow up to the maximum.
	if p.tryScale(h, p.conf.MaxWorkers) {
		return h, nil
	}
	// 5. Saturated.
	return p.conf.Rejection.reject(p, h)
}

// tryHandoff claims an idle worker and gives it the task directly,
// bypassing the queue.
func (p *Pool) tryHandoff(h *Handle) bool {
	for {
		select {
		case w := <-p.idleWorkers:
			if atomic.CompareAndSwapInt32(&w.state, workerIdle, workerBusy) {
				w.jobCh <- h
				return true
			}
			// Stale entry, keep looking.
		default:
			return false
		}
	}
}

// tryScale creates a new worker, seeded with first, if the live count is
// below limit. The count is reserved with a CAS before the goroutine starts.
func (p *Pool) tryScale(first *Handle, limit int) bool {
	for {
		n := atomic.LoadInt32(&p.workerCount)
		if n >= int32(limit) {
			return false
		}
		if atomic.CompareAndSwapInt32(&p.workerCount, n, n+1) {
			p.spawnWorker(first)
			return true
		}
	}
}

func (p *Pool) spawnWorker(first *Handle) {
	id := int(atomic.AddInt64(&p.nextWorkerID, 1))
	w := &worker{
		id:    id,
		name:  p.conf.Namer(id),
		pool:  p,
		state: workerBusy,
		jobCh: make(chan *Handle, 1),
	}
	if first != nil {
		w.jobCh <- first
	}
	p.logger().Debug("worker created",
		zap.String("worker", w.name),
		zap.Int32("workers", atomic.LoadInt32(&p.workerCount)))
	go w.run()
}

// runTask executes a task with panic isolation and records the outcome in
// its handle. Used by workers and by the CallerRuns policy.
func (p *Pool) runTask(h *Handle) {
	if h == nil || !h.begin() {
		return
	}
	p.stats.addRunning(1)
	defer p.stats.addRunning(-1)

	defer func() {
		if r := recover(); r != nil {
			p.stats.addFailed(1)
			h.complete(nil, &PanicError{Value: r, Stack: string(debug.Stack())})
			if p.conf.PanicHandler != nil {
				p.conf.PanicHandler(r)
			}
		}
	}()

	value, err := h.fn(h.ctx)
	if err != nil {
		p.stats.addFailed(1)
	}
	h.complete(value, err)
}

// finalize runs exactly once per admitted handle, when its slot is written
// or it is released unadmitted.
func (p *Pool) finalize(h *Handle) {
	p.inflight.Delete(h.id)
	p.submitWg.Done()
}

// Shutdown transitions the pool to the shutting-down state. New submissions
// are rejected; queued and running tasks run to completion. Non-blocking.
// Calling it more than once, or after ShutdownNow, has no effect.
func (p *Pool) Shutdown() {
	if !p.casState(StateRunning, StateShuttingDown) {
		return
	}
	p.logger().Info("pool shutting down", zap.Int("queued", p.queue.depth()))
	p.shutdownOnce.Do(func() { close(p.shutdownCh) })

	// Queued tasks need a worker to drain them.
	if p.queue.depth() > 0 && atomic.LoadInt32(&p.workerCount) == 0 {
		p.tryScale(nil, p.conf.MaxWorkers)
	}
	p.tryTerminate()
}

// ShutdownNow transitions the pool to the stopping state, abandons every
// task that has not yet begun execution and returns their functions (in no
// particular order). Running tasks get their contexts cancelled; whether
// they actually stop is up to them.
func (p *Pool) ShutdownNow() []Func {
	for {
		st := p.State()
		if st == StateStopping || st == StateTerminated {
			return nil
		}
		if p.casState(st, StateStopping) {
			break
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdownCh) })
	p.stopOnce.Do(func() { close(p.stopCh) })

	// Empty the buffer; the handles are also tracked in inflight, which is
	// where they (and tasks parked in worker handoff slots) get cancelled.
	p.queue.drain()

	var fns []Func
	p.inflight.Range(func(_, v interface{}) bool {
		h := v.(*Handle)
		if fn, ok := h.cancelQueued(); ok {
			fns = append(fns, fn)
		} else {
			// Already executing: cooperative cancellation only.
			h.cancel()
		}
		return true
	})

	p.logger().Info("pool stopping",
		zap.Int("abandoned", len(fns)),
		zap.Int32("workers", atomic.LoadInt32(&p.workerCount)))
	p.tryTerminate()
	return fns
}

// AwaitTermination blocks until the pool is terminated or the timeout
// elapses, and reports whether termination was observed. It is purely an
// observer and never changes pool state.
func (p *Pool) AwaitTermination(timeout time.Duration) bool {
	select {
	case <-p.termCh:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.termCh:
		return true
	case <-timer.C:
		return false
	}
}

// Wait blocks until every admitted task has completed. It does not shut the
// pool down.
func (p *Pool) Wait() {
	p.submitWg.Wait()
}

// Terminated reports whether the pool has fully terminated.
func (p *Pool) Terminated() bool {
	return p.State() == StateTerminated
}

// tryTerminate moves to the terminated state once no worker remains and,
// for a graceful shutdown, the queue is empty.
func (p *Pool) tryTerminate() {
	for {
		st := p.State()
		if st != StateShuttingDown && st != StateStopping {
			return
		}
		if atomic.LoadInt32(&p.workerCount) != 0 {
			return
		}
		if st == StateShuttingDown && p.queue.depth() != 0 {
			return
		}
		if p.casState(st, StateTerminated) {
			p.queue.drain() // stops the pump in unbounded mode
			p.termOnce.Do(func() { close(p.termCh) })
			p.logger().Info("pool terminated")
			return
		}
	}
}

func (p *Pool) logger() *zap.Logger {
	return p.conf.Logger
}

func (p *Pool) logRejected(h *Handle, policy string) {
	p.logger().Warn("task rejected",
		zap.String("task_id", h.ID()),
		zap.String("policy", policy),
		zap.Int("queue_depth", p.queue.depth()),
		zap.Int32("workers", atomic.LoadInt32(&p.workerCount)))
}
