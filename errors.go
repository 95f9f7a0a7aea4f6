package covey

import "fmt"

// Common errors returned by the pool.
var (
	// ErrPoolShutdown is returned when submitting a task to a pool that has
	// left the Running state. Once shutdown begins, no new tasks are admitted.
	ErrPoolShutdown = &PoolError{msg: "pool is shut down"}

	// ErrRejected is returned when the pool is saturated (queue full, maximum
	// worker count reached) and the Abort rejection policy is in effect.
	ErrRejected = &PoolError{msg: "task rejected: pool saturated"}

	// ErrDiscarded is recorded in a task's handle when the Discard policy
	// dropped the task. Submit itself returns nil in that case; the handle
	// completes with this error so the drop is observable.
	ErrDiscarded = &PoolError{msg: "task discarded by rejection policy"}

	// ErrCancelled is recorded in a task's handle when the task was cancelled
	// before completing, either via Handle.Cancel or ShutdownNow.
	ErrCancelled = &PoolError{msg: "task cancelled"}

	// ErrWaitTimeout is returned by Handle.WaitTimeout when the deadline
	// elapses before a result is available.
	ErrWaitTimeout = &PoolError{msg: "wait timed out"}

	// ErrNilTask is returned when attempting to submit a nil task function.
	ErrNilTask = &PoolError{msg: "task is nil"}
)

// PoolError represents an error that occurred within the worker pool.
// It implements the error interface and supports unwrapping via errors.Unwrap
// for use with errors.Is and errors.As.
type PoolError struct {
	msg string
	err error
}

// Error returns a formatted error message. If an underlying error exists,
// it is included in the output.
func (e *PoolError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("covey: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("covey: %s", e.msg)
}

// Unwrap returns the underlying error, if any.
func (e *PoolError) Unwrap() error {
	return e.err
}

// PanicError wraps a value recovered from a panicking task, together with the
// stack trace captured at the point of recovery. It is stored in the task's
// handle so a panic surfaces to the submitter, never to unrelated code.
type PanicError struct {
	Value interface{}
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("covey: task panicked: %v\n%s", p.Value, p.Stack)
}

func errInvalidConfig(msg string) error {
	return &PoolError{msg: "invalid config: " + msg}
}
