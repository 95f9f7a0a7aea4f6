package covey

import (
	"context"
	"time"
)

// Future is a typed view over a Handle.
type Future[T any] struct {
	h *Handle
}

// Submit admits a typed task and returns a typed future for its result.
// Dispatch and rejection behave exactly as Pool.Submit.
func Submit[T any](p *Pool, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	return SubmitCtx(context.Background(), p, fn)
}

// SubmitCtx is Submit with a caller-supplied parent context.
func SubmitCtx[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	h, err := p.SubmitCtx(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Future[T]{h: h}, nil
}

// Handle returns the underlying untyped handle.
func (f *Future[T]) Handle() *Handle { return f.h }

// Done returns a channel closed when the task has completed.
func (f *Future[T]) Done() <-chan struct{} { return f.h.Done() }

// Wait blocks until the task completes and returns its typed result.
func (f *Future[T]) Wait() (T, error) {
	v, err := f.h.Wait()
	return cast[T](v), err
}

// WaitTimeout blocks up to d for the result, returning ErrWaitTimeout if it
// is not available in time.
func (f *Future[T]) WaitTimeout(d time.Duration) (T, error) {
	v, err := f.h.WaitTimeout(d)
	return cast[T](v), err
}

// Cancel requests cancellation of the task. See Handle.Cancel.
func (f *Future[T]) Cancel() bool { return f.h.Cancel() }

func cast[T any](v interface{}) T {
	t, _ := v.(T)
	return t
}
