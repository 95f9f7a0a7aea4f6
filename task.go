package covey

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Func is the unit of work executed by the pool. The context is cancelled
// when the task's handle is cancelled or the pool enters the stopping state;
// cancellation is cooperative and tasks are expected to observe ctx at safe
// points.
type Func func(ctx context.Context) (interface{}, error)

const (
	handlePending int32 = iota
	handleRunning
	handleFinished
)

// Handle is the caller-visible proxy to a submitted task's result slot.
// The slot is written once, by whichever goroutine finishes the task, and is
// read-only afterwards. A task's failure never surfaces anywhere except
// through its handle.
type Handle struct {
	id     string
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc

	pool  *Pool
	state int32 // atomic: handlePending, handleRunning, handleFinished
	done  chan struct{}
	once  sync.Once

	value interface{}
	err   error
}

func newHandle(parent context.Context, p *Pool, fn Func) *Handle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		id:     uuid.NewString(),
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
		pool:   p,
		done:   make(chan struct{}),
	}
}

// ID returns the unique identifier of the task.
func (h *Handle) ID() string { return h.id }

// Done returns a channel that is closed once the task has a result, failed,
// or was cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task completes and returns its result.
func (h *Handle) Wait() (interface{}, error) {
	<-h.done
	return h.value, h.err
}

// WaitTimeout blocks up to d for the task to complete. It returns
// ErrWaitTimeout if no result became available in time; the task itself is
// unaffected.
func (h *Handle) WaitTimeout(d time.Duration) (interface{}, error) {
	select {
	case <-h.done:
		return h.value, h.err
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.done:
		return h.value, h.err
	case <-timer.C:
		return nil, ErrWaitTimeout
	}
}

// TryResult polls for a result without blocking. The boolean reports whether
// the task has completed.
func (h *Handle) TryResult() (interface{}, error, bool) {
	select {
	case <-h.done:
		return h.value, h.err, true
	default:
		return nil, nil, false
	}
}

// Cancel requests cancellation of the task. A task that has not yet started
// will never run and its handle completes with ErrCancelled. A running task
// has its context cancelled and is expected to stop cooperatively; the
// engine never preempts it. Cancel returns false if the task had already
// completed.
func (h *Handle) Cancel() bool {
	if atomic.CompareAndSwapInt32(&h.state, handlePending, handleFinished) {
		h.cancel()
		h.complete(nil, ErrCancelled)
		return true
	}
	if atomic.LoadInt32(&h.state) == handleRunning {
		h.cancel()
		return true
	}
	return false
}

// begin marks the handle as executing. It returns false if the task was
// cancelled or discarded while waiting, in which case it must not run.
func (h *Handle) begin() bool {
	return atomic.CompareAndSwapInt32(&h.state, handlePending, handleRunning)
}

// complete writes the result slot exactly once and releases all waiters.
func (h *Handle) complete(value interface{}, err error) {
	h.once.Do(func() {
		h.value = value
		h.err = err
		atomic.StoreInt32(&h.state, handleFinished)
		close(h.done)
		if h.pool != nil {
			h.pool.stats.addCompleted(1)
			h.pool.finalize(h)
		}
	})
}

// discard completes a never-started handle with ErrDiscarded.
func (h *Handle) discard() {
	if atomic.CompareAndSwapInt32(&h.state, handlePending, handleFinished) {
		h.cancel()
		h.complete(nil, ErrDiscarded)
	}
}

// cancelQueued cancels a handle that was drained from the queue before
// dispatch and returns its task function.
func (h *Handle) cancelQueued() (Func, bool) {
	if !atomic.CompareAndSwapInt32(&h.state, handlePending, handleFinished) {
		return nil, false
	}
	h.cancel()
	h.complete(nil, ErrCancelled)
	return h.fn, true
}

// release drops a handle that was never admitted (abort rejection).
func (h *Handle) release() {
	h.cancel()
	if h.pool != nil {
		h.pool.finalize(h)
	}
}
