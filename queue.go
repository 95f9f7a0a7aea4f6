package covey

import (
	"sync"
	"sync/atomic"
)

// taskQueue is the buffer between submission and dispatch. Three modes exist:
// none (direct handoff only), bounded, and unbounded. FIFO order is
// guaranteed among tasks that pass through the queue; tasks handed directly
// to a worker bypass it and may run out of submission order relative to
// queued tasks.
type taskQueue interface {
	// offer admits a task without blocking. It returns false when the
	// queue is full or the mode has no buffering.
	offer(h *Handle) bool

	// take returns the channel workers receive queued tasks from.
	// It is nil in the no-buffering mode.
	take() <-chan *Handle

	// evictOldest removes the head of the queue, if any.
	evictOldest() (*Handle, bool)

	// drain removes and returns every task still queued. The queue accepts
	// no further offers.
	drain() []*Handle

	// depth is the number of tasks currently buffered, including one that
	// may be in flight between buffer and worker.
	depth() int
}

func newTaskQueue(capacity int) taskQueue {
	switch {
	case capacity == QueueNone:
		return zeroQueue{}
	case capacity == QueueUnbounded:
		return newUnboundedQueue()
	default:
		return &boundedQueue{ch: make(chan *Handle, capacity)}
	}
}

// zeroQueue is the no-buffering mode. Every offer fails, which pushes the
// dispatch algorithm straight from handoff to worker creation.
type zeroQueue struct{}

func (zeroQueue) offer(*Handle) bool { return false }

func (zeroQueue) take() <-chan *Handle { return nil }

func (zeroQueue) evictOldest() (*Handle, bool) { return nil, false }

func (zeroQueue) drain() []*Handle { return nil }

func (zeroQueue) depth() int { return 0 }

// boundedQueue is a fixed-capacity FIFO backed by a buffered channel.
type boundedQueue struct {
	ch     chan *Handle
	closed int32 // atomic
}

func (q *boundedQueue) offer(h *Handle) bool {
	if atomic.LoadInt32(&q.closed) == 1 {
		return false
	}
	select {
	case q.ch <- h:
		return true
	default:
		return false
	}
}

func (q *boundedQueue) take() <-chan *Handle { return q.ch }

func (q *boundedQueue) evictOldest() (*Handle, bool) {
	select {
	case h := <-q.ch:
		return h, true
	default:
		return nil, false
	}
}

func (q *boundedQueue) drain() []*Handle {
	atomic.StoreInt32(&q.closed, 1)
	var out []*Handle
	for {
		select {
		case h := <-q.ch:
			out = append(out, h)
		default:
			return out
		}
	}
}

func (q *boundedQueue) depth() int { return len(q.ch) }

// unboundedQueue grows without limit. A pump goroutine feeds buffered tasks
// to workers over an unbuffered channel so that workers can keep selecting
// on channels rather than polling a lock.
type unboundedQueue struct {
	mu     sync.Mutex
	items  []*Handle
	closed bool

	size     int64 // atomic; includes an item held by the pump
	out      chan *Handle
	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{
		out:    make(chan *Handle),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *unboundedQueue) offer(h *Handle) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, h)
	q.mu.Unlock()
	atomic.AddInt64(&q.size, 1)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *unboundedQueue) take() <-chan *Handle { return q.out }

func (q *unboundedQueue) pop() *Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	h := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return h
}

func (q *unboundedQueue) pump() {
	defer close(q.done)
	for {
		h := q.pop()
		if h == nil {
			select {
			case <-q.notify:
				continue
			case <-q.stop:
				return
			}
		}
		select {
		case q.out <- h:
			atomic.AddInt64(&q.size, -1)
		case <-q.stop:
			// Hand the in-flight item back so drain sees it.
			q.mu.Lock()
			q.items = append([]*Handle{h}, q.items...)
			q.mu.Unlock()
			return
		}
	}
}

func (q *unboundedQueue) evictOldest() (*Handle, bool) {
	h := q.pop()
	if h == nil {
		return nil, false
	}
	atomic.AddInt64(&q.size, -1)
	return h, true
}

func (q *unboundedQueue) drain() []*Handle {
	q.stopOnce.Do(func() { close(q.stop) })
	<-q.done
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	out := q.items
	q.items = nil
	atomic.StoreInt64(&q.size, 0)
	return out
}

func (q *unboundedQueue) depth() int {
	return int(atomic.LoadInt64(&q.size))
}
