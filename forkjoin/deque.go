package forkjoin

import (
	"context"
	"sync/atomic"
)

// item is one queued unit of fork/join work, bound to the context of
// whichever worker ends up running it.
type item func(ctx context.Context)

// deque is a Chase-Lev work-stealing deque. The owning worker pushes and
// pops at the bottom, newest subtasks first; thieves take oldest subtasks
// from the top, away from the owner's end.
//
// bottom is written only by the owner; top is claimed by CAS, which
// arbitrates both thief-vs-thief and the last-element race between owner
// and thief. The backing array is a circular buffer replaced wholesale on
// growth via atomic.Value, so neither side ever follows a partially
// published pointer.
type deque struct {
	_      pad
	top    int64
	_      pad
	bottom int64
	_      pad
	array  atomic.Value // *ring
}

type pad [64]byte

type ring struct {
	capacity int64
	buffer   []item
}

func newRing(capacity int64) *ring {
	return &ring{capacity: capacity, buffer: make([]item, capacity)}
}

func (r *ring) get(i int64) item     { return r.buffer[i%r.capacity] }
func (r *ring) put(i int64, it item) { r.buffer[i%r.capacity] = it }

func newDeque(initialCapacity int64) *deque {
	if initialCapacity < 16 {
		initialCapacity = 16
	}
	d := &deque{}
	d.array.Store(newRing(initialCapacity))
	return d
}

// push adds a task at the bottom. Owner only.
func (d *deque) push(it item) {
	if it == nil {
		return
	}
	bottom := atomic.LoadInt64(&d.bottom)
	top := atomic.LoadInt64(&d.top)
	r := d.array.Load().(*ring)

	// One slot stays free to keep full and empty distinguishable.
	if bottom-top >= r.capacity-1 {
		r = d.grow(bottom, top, r)
		d.array.Store(r)
	}
	r.put(bottom, it)

	// The write to the slot must be visible before the new bottom; the
	// atomic add doubles as the release fence.
	atomic.AddInt64(&d.bottom, 0)
	atomic.StoreInt64(&d.bottom, bottom+1)
}

// pop removes the newest task from the bottom. Owner only. The only race is
// against a thief going for the very last element, settled by CAS on top.
func (d *deque) pop() item {
	bottom := atomic.LoadInt64(&d.bottom) - 1
	r := d.array.Load().(*ring)
	atomic.StoreInt64(&d.bottom, bottom)

	// Full fence ordering the bottom store against the top load, paired
	// with the fence in steal.
	atomic.LoadInt64(&d.bottom)

	top := atomic.LoadInt64(&d.top)
	if top > bottom {
		// Empty; restore.
		atomic.StoreInt64(&d.bottom, bottom+1)
		return nil
	}

	it := r.get(bottom)
	if top == bottom {
		// Last element: whoever moves top wins it.
		if !atomic.CompareAndSwapInt64(&d.top, top, top+1) {
			it = nil
		}
		atomic.StoreInt64(&d.bottom, bottom+1)
		return it
	}
	return it
}

// steal removes the oldest task from the top. Safe for any number of
// concurrent thieves; returns nil when empty or when the CAS race is lost.
func (d *deque) steal() item {
	top := atomic.LoadInt64(&d.top)
	atomic.LoadInt64(&d.top) // fence, paired with pop
	bottom := atomic.LoadInt64(&d.bottom)
	if top >= bottom {
		return nil
	}
	r := d.array.Load().(*ring)
	it := r.get(top)
	if !atomic.CompareAndSwapInt64(&d.top, top, top+1) {
		return nil
	}
	return it
}

func (d *deque) grow(bottom, top int64, old *ring) *ring {
	r := newRing(old.capacity * 2)
	for i := top; i < bottom; i++ {
		r.put(i, old.get(i))
	}
	return r
}

// size is a racy snapshot, useful only as a hint.
func (d *deque) size() int64 {
	s := atomic.LoadInt64(&d.bottom) - atomic.LoadInt64(&d.top)
	if s < 0 {
		return 0
	}
	return s
}

func (d *deque) empty() bool { return d.size() == 0 }
