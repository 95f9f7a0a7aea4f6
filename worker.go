package covey

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	workerBusy int32 = iota
	workerIdle
	workerRetired
)

// worker is a single pool goroutine. Tasks reach it three ways: a direct
// handoff into jobCh (claimed by a submitter via CAS on state), the shared
// task queue, or as the seed task it was created with.
type worker struct {
	id   int
	name string
	pool *Pool

	state int32 // atomic: workerBusy, workerIdle, workerRetired
	jobCh chan *Handle

	// retired means the worker already gave its count slot back in
	// maybeRetire; exit must not decrement again.
	retired bool
}

func (w *worker) run() {
	p := w.pool
	defer w.exit()

	for {
		// Handoffs take priority: a submitter committed a task to us.
		select {
		case h := <-w.jobCh:
			p.runTask(h)
			continue
		default:
		}

		switch p.State() {
		case StateStopping, StateTerminated:
			return
		case StateShuttingDown:
			w.drainForShutdown()
			return
		}

		select {
		case h := <-p.queue.take():
			p.runTask(h)
			continue
		default:
		}

		if !w.idle() {
			return
		}
	}
}

// drainForShutdown runs queued tasks until the queue is empty or the pool
// escalates to stopping.
func (w *worker) drainForShutdown() {
	p := w.pool
	for {
		select {
		case h := <-w.jobCh:
			p.runTask(h)
		case h := <-p.queue.take():
			p.runTask(h)
		case <-p.stopCh:
			return
		default:
			if p.queue.depth() == 0 {
				return
			}
			// Buffered work exists but is not yet offered on the
			// channel; wait briefly and re-check.
			select {
			case h := <-p.queue.take():
				p.runTask(h)
			case <-p.stopCh:
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

// idle parks the worker until a task, the idle timeout, or shutdown arrives.
// It returns false when the worker should exit.
func (w *worker) idle() bool {
	p := w.pool

	atomic.StoreInt32(&w.state, workerIdle)
	atomic.AddInt32(&p.idleCount, 1)
	defer atomic.AddInt32(&p.idleCount, -1)

	// Register for direct handoff. If the channel is full we simply stay
	// reachable through the queue.
	select {
	case p.idleWorkers <- w:
	default:
	}

	timer := time.NewTimer(p.conf.IdleTimeout)
	defer timer.Stop()

	select {
	case h := <-w.jobCh:
		// The submitter moved us to busy before sending.
		p.runTask(h)
		return true
	case h := <-p.queue.take():
		if !atomic.CompareAndSwapInt32(&w.state, workerIdle, workerBusy) {
			// A handoff claimed us at the same moment; its task is in
			// jobCh and runs on the next loop iteration.
		}
		p.runTask(h)
		return true
	case <-timer.C:
		return w.maybeRetire()
	case <-p.shutdownCh:
		atomic.CompareAndSwapInt32(&w.state, workerIdle, workerBusy)
		return true
	}
}

// maybeRetire retires a worker that idled past the timeout, unless the pool
// is at the core count or this is the last worker standing between queued
// tasks and starvation. It returns true when the worker should keep running.
func (w *worker) maybeRetire() bool {
	p := w.pool
	if !atomic.CompareAndSwapInt32(&w.state, workerIdle, workerRetired) {
		// A handoff is in flight for us.
		return true
	}
	for {
		n := atomic.LoadInt32(&p.workerCount)
		if n <= int32(p.conf.CoreWorkers) || (n == 1 && p.queue.depth() > 0) {
			atomic.StoreInt32(&w.state, workerIdle)
			return true
		}
		if atomic.CompareAndSwapInt32(&p.workerCount, n, n-1) {
			w.retired = true
			p.logger().Debug("worker retired",
				zap.String("worker", w.name),
				zap.Duration("idle_timeout", p.conf.IdleTimeout),
				zap.Int32("workers", n-1))
			// A task may have been queued between the starvation check
			// above and the decrement, by a submitter that still saw
			// this worker in the count. Re-check now that the decrement
			// is visible and leave a worker behind for it.
			if atomic.LoadInt32(&p.workerCount) == 0 && p.queue.depth() > 0 {
				p.tryScale(nil, p.conf.MaxWorkers)
			}
			return false
		}
	}
}

func (w *worker) exit() {
	p := w.pool
	atomic.StoreInt32(&w.state, workerRetired)
	if !w.retired {
		atomic.AddInt32(&p.workerCount, -1)
		p.logger().Debug("worker stopped", zap.String("worker", w.name))
	}

	// Run anything a submitter managed to hand us before we flipped state.
	select {
	case h := <-w.jobCh:
		if p.State() == StateStopping {
			h.cancelQueued()
		} else {
			p.runTask(h)
		}
	default:
	}

	p.tryTerminate()
}
