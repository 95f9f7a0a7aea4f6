package covey

import "go.uber.org/zap"

// RejectionPolicy decides the fate of a task the dispatch algorithm could
// not admit: the queue is full and the pool is at its maximum worker count.
//
// Policies are injected via WithRejectionPolicy. The built-in policies are
// Abort, Discard, DiscardOldest and CallerRuns.
type RejectionPolicy interface {
	// String names the policy for log events.
	String() string

	// reject is invoked with the saturated pool and the task's handle.
	// It returns what Submit should return.
	reject(p *Pool, h *Handle) (*Handle, error)
}

// Built-in rejection policies.
var (
	// Abort fails the submission with ErrRejected.
	Abort RejectionPolicy = abortPolicy{}

	// Discard drops the task. Submit returns the handle without error;
	// the handle completes with ErrDiscarded so the drop is observable.
	Discard RejectionPolicy = discardPolicy{}

	// DiscardOldest evicts the head of the queue (completing its handle
	// with ErrDiscarded), retries admission once, then falls back to Abort.
	DiscardOldest RejectionPolicy = discardOldestPolicy{}

	// CallerRuns executes the task synchronously on the submitting
	// goroutine. This is the only policy that can make Submit block for
	// the duration of the task.
	CallerRuns RejectionPolicy = callerRunsPolicy{}
)

type abortPolicy struct{}

func (abortPolicy) String() string { return "abort" }

func (abortPolicy) reject(p *Pool, h *Handle) (*Handle, error) {
	p.stats.addRejected(1)
	p.logRejected(h, "abort")
	h.release()
	return nil, ErrRejected
}

type discardPolicy struct{}

func (discardPolicy) String() string { return "discard" }

func (discardPolicy) reject(p *Pool, h *Handle) (*Handle, error) {
	p.stats.addRejected(1)
	p.logRejected(h, "discard")
	h.discard()
	return h, nil
}

type discardOldestPolicy struct{}

func (discardOldestPolicy) String() string { return "discard_oldest" }

func (discardOldestPolicy) reject(p *Pool, h *Handle) (*Handle, error) {
	if old, ok := p.queue.evictOldest(); ok {
		p.stats.addRejected(1)
		p.logRejected(old, "discard_oldest")
		old.discard()
		if p.queue.offer(h) {
			return h, nil
		}
	}
	return Abort.reject(p, h)
}

type callerRunsPolicy struct{}

func (callerRunsPolicy) String() string { return "caller_runs" }

func (callerRunsPolicy) reject(p *Pool, h *Handle) (*Handle, error) {
	p.logger().Debug("task executed by submitter",
		zap.String("task_id", h.ID()),
		zap.String("policy", "caller_runs"))
	p.runTask(h)
	return h, nil
}
