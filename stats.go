package covey

import "sync/atomic"

// Stats is a point-in-time snapshot of pool activity. Values are gathered
// without locks and may be slightly inconsistent with one another while the
// pool is busy.
type Stats struct {
	Workers    int   // current live workers (busy + idle)
	Idle       int   // workers waiting for a task
	Running    int64 // tasks executing right now
	QueueDepth int   // tasks buffered in the queue

	Submitted int64 // submissions offered since creation, rejected ones included
	Completed int64 // tasks that finished, successfully or not
	Failed    int64 // tasks that returned an error or panicked
	Rejected  int64 // tasks refused by the rejection policy
}

// statsStore holds the atomically-updated counters behind Stats.
type statsStore struct {
	submitted int64
	completed int64
	failed    int64
	rejected  int64
	running   int64
}

func (s *statsStore) addSubmitted(n int64) { atomic.AddInt64(&s.submitted, n) }
func (s *statsStore) addCompleted(n int64) { atomic.AddInt64(&s.completed, n) }
func (s *statsStore) addFailed(n int64)    { atomic.AddInt64(&s.failed, n) }
func (s *statsStore) addRejected(n int64)  { atomic.AddInt64(&s.rejected, n) }
func (s *statsStore) addRunning(n int64)   { atomic.AddInt64(&s.running, n) }

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    int(atomic.LoadInt32(&p.workerCount)),
		Idle:       int(atomic.LoadInt32(&p.idleCount)),
		Running:    atomic.LoadInt64(&p.stats.running),
		QueueDepth: p.queue.depth(),
		Submitted:  atomic.LoadInt64(&p.stats.submitted),
		Completed:  atomic.LoadInt64(&p.stats.completed),
		Failed:     atomic.LoadInt64(&p.stats.failed),
		Rejected:   atomic.LoadInt64(&p.stats.rejected),
	}
}
