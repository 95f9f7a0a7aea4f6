package forkjoin

import (
	"context"
	"sync/atomic"
	"time"
)

type workerKey struct{}

// workerFrom returns the worker executing the current computation, if the
// context came from inside the pool.
func workerFrom(ctx context.Context) (*worker, bool) {
	w, ok := ctx.Value(workerKey{}).(*worker)
	return w, ok
}

// worker owns a private deque and runs the steal loop.
type worker struct {
	id    int
	pool  *Pool
	deque *deque

	// signal wakes a parked worker when new work may be available.
	signal chan struct{}

	// rngState seeds xorshift victim selection, distinct per worker.
	rngState uint32
}

func newWorker(id int, p *Pool) *worker {
	return &worker{
		id:       id,
		pool:     p,
		deque:    newDeque(int64(p.conf.DequeCapacity)),
		signal:   make(chan struct{}, 1),
		rngState: uint32(id)*2654435761 + 1,
	}
}

// run is the worker loop: drain the local deque, then the shared inbox,
// then steal; spin briefly and park when nothing is available.
func (w *worker) run() {
	ctx := context.WithValue(context.Background(), workerKey{}, w)
	spins := 0
	for {
		if it := w.findTask(); it != nil {
			it(ctx)
			atomic.AddUint64(&w.pool.executed, 1)
			spins = 0
			continue
		}

		if w.pool.isStopped() && w.deque.empty() {
			return
		}

		spins++
		if spins < w.pool.conf.SpinCount {
			continue
		}
		spins = 0
		select {
		case <-w.signal:
		case <-w.pool.stopCh:
			// Re-check once so work forked just before shutdown
			// still drains.
		case <-time.After(w.pool.conf.MaxParkTime):
		}
	}
}

// findTask returns the next subtask in priority order, or nil.
func (w *worker) findTask() item {
	if it := w.deque.pop(); it != nil {
		return it
	}
	select {
	case it := <-w.pool.inbox:
		return it
	default:
	}
	return w.trySteal()
}

// trySteal probes each other worker once, starting from a random victim.
func (w *worker) trySteal() item {
	n := len(w.pool.workers)
	if n < 2 {
		return nil
	}
	start := int(w.xorshift()) % n
	for i := 0; i < n; i++ {
		victim := w.pool.workers[(start+i)%n]
		if victim == w {
			continue
		}
		if it := victim.deque.steal(); it != nil {
			atomic.AddUint64(&w.pool.stolen, 1)
			return it
		}
	}
	return nil
}

func (w *worker) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// xorshift is a cheap per-worker PRNG for victim selection.
func (w *worker) xorshift() uint32 {
	x := w.rngState
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	w.rngState = x
	return x
}
