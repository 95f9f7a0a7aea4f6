package forkjoin

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"github.com/haldre/covey"
)

const (
	taskNew int32 = iota
	taskClaimed
	taskDone
)

// Task is a fork/join computation producing a value of type T.
//
// A task runs at most once: it is claimed either by the worker that picks
// it up from a deque, or by a joiner that finds it still unclaimed and
// runs it inline.
type Task[T any] struct {
	compute func(ctx context.Context) (T, error)

	state int32 // atomic
	done  chan struct{}
	value T
	err   error
}

// NewTask wraps a computation in a forkable task.
func NewTask[T any](compute func(ctx context.Context) (T, error)) *Task[T] {
	return &Task[T]{
		compute: compute,
		done:    make(chan struct{}),
	}
}

// Fork schedules the task on the calling worker's deque. It must be called
// from inside a pool computation; ctx is the context the pool passed in.
func (t *Task[T]) Fork(ctx context.Context) error {
	if t == nil || t.compute == nil {
		return ErrNilTask
	}
	w, ok := workerFrom(ctx)
	if !ok {
		return ErrNotInPool
	}
	w.deque.push(t.asItem())
	// A loaded deque is a stealing opportunity for parked workers.
	w.pool.wakeAll()
	return nil
}

// Join blocks until the task completes and returns its result. When called
// from inside a pool computation the joining worker helps: it runs its own
// and stolen subtasks while waiting, and runs the task itself inline if no
// other worker has claimed it.
func (t *Task[T]) Join(ctx context.Context) (T, error) {
	if t == nil || t.compute == nil {
		var zero T
		return zero, ErrNilTask
	}
	if w, ok := workerFrom(ctx); ok {
		t.helpJoin(ctx, w)
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	return t.value, t.err
}

// helpJoin keeps the worker productive until the task finishes. Chase-Lev
// pop is LIFO, so the most recent fork is usually the first thing popped
// and the join completes without parking.
func (t *Task[T]) helpJoin(ctx context.Context, w *worker) {
	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		if it := w.findTask(); it != nil {
			it(ctx)
			atomic.AddUint64(&w.pool.executed, 1)
			continue
		}
		// Nothing to help with; the task is unclaimed or running on
		// another worker. Claim it inline if possible, otherwise wait.
		if atomic.LoadInt32(&t.state) == taskNew {
			t.run(ctx)
			return
		}
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case <-w.signal:
		}
	}
}

// asItem adapts the task to the deque's element type.
func (t *Task[T]) asItem() item {
	return func(ctx context.Context) { t.run(ctx) }
}

// run claims and executes the computation exactly once.
func (t *Task[T]) run(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&t.state, taskNew, taskClaimed) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.err = &covey.PanicError{Value: r, Stack: string(debug.Stack())}
		}
		atomic.StoreInt32(&t.state, taskDone)
		close(t.done)
	}()
	t.value, t.err = t.compute(ctx)
}

// Invoke submits a root task from outside the pool and waits for its result.
func Invoke[T any](p *Pool, t *Task[T]) (T, error) {
	var zero T
	if t == nil || t.compute == nil {
		return zero, ErrNilTask
	}
	if err := p.submit(t.asItem()); err != nil {
		return zero, err
	}
	select {
	case <-t.done:
		return t.value, t.err
	case <-p.stopCh:
		// The pool may stop after the task was claimed; give a claimed
		// task the chance to finish.
		if atomic.LoadInt32(&t.state) != taskNew {
			<-t.done
			return t.value, t.err
		}
		return zero, ErrPoolShutdown
	}
}
