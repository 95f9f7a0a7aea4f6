// Package group runs a set of related tasks on a pool and waits for them
// as a unit.
//
// A Group shares one context across its tasks. Depending on the error
// mode, the first failure cancels the rest (FailFast), every failure is
// collected into an aggregate (CollectAll), or failures are ignored.
package group

import (
	"context"
	"fmt"
	"sync"

	"github.com/haldre/covey"
)

// ErrorMode defines how a Group reacts to task failures.
type ErrorMode int

const (
	// CollectAll gathers every error and returns them aggregated from Wait.
	CollectAll ErrorMode = iota
	// FailFast cancels the group context on the first error and returns it.
	FailFast
	// IgnoreErrors discards task errors entirely.
	IgnoreErrors
)

// AggregateError holds the failures of a CollectAll group.
type AggregateError struct {
	Errors []error
}

func (a AggregateError) Error() string {
	if len(a.Errors) == 0 {
		return "no errors"
	}
	return fmt.Sprintf("%d task errors: %v", len(a.Errors), a.Errors)
}

func (a AggregateError) Unwrap() []error {
	return a.Errors
}

// Option configures a Group.
type Option func(*Group)

// WithErrorMode sets how task errors are handled. Default is CollectAll.
func WithErrorMode(mode ErrorMode) Option {
	return func(g *Group) {
		g.mode = mode
	}
}

// Group submits tasks to a shared pool and tracks them together.
type Group struct {
	pool   *covey.Pool
	mode   ErrorMode
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu       sync.Mutex
	errs     []error
	firstErr error
}

// New creates a group executing on pool.
func New(pool *covey.Pool, opts ...Option) *Group {
	return NewWithContext(context.Background(), pool, opts...)
}

// NewWithContext creates a group whose tasks observe ctx. Cancelling ctx
// cancels every running task in the group.
func NewWithContext(ctx context.Context, pool *covey.Pool, opts ...Option) *Group {
	if ctx == nil {
		ctx = context.Background()
	}
	gctx, cancel := context.WithCancel(ctx)
	g := &Group{
		pool:   pool,
		mode:   CollectAll,
		ctx:    gctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Go submits fn to the pool as part of the group. A submission refused by
// the pool is treated as a task failure; the pool's rejection policy has
// already run by then.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	h, err := g.pool.SubmitCtx(g.ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		g.handleError(err)
		g.wg.Done()
		return
	}
	go func() {
		defer g.wg.Done()
		if _, err := h.Wait(); err != nil {
			g.handleError(err)
		}
	}()
}

// Wait blocks until every submitted task finishes, then reports failures
// according to the group's error mode. The group context is cancelled on
// return.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel()

	switch g.mode {
	case IgnoreErrors:
		return nil
	case FailFast:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.firstErr
	default:
		g.mu.Lock()
		defer g.mu.Unlock()
		if len(g.errs) > 0 {
			return AggregateError{Errors: append([]error(nil), g.errs...)}
		}
		return nil
	}
}

// Stop cancels the group context. Queued group tasks finish as cancelled;
// running ones observe ctx.Done().
func (g *Group) Stop() {
	g.cancel()
}

func (g *Group) handleError(err error) {
	switch g.mode {
	case IgnoreErrors:
	case FailFast:
		// The first failure wins; later ones, including cancellation
		// fallout from the first, are dropped.
		g.mu.Lock()
		if g.firstErr != nil {
			g.mu.Unlock()
			return
		}
		g.firstErr = err
		g.mu.Unlock()
		g.cancel()
	default:
		g.mu.Lock()
		g.errs = append(g.errs, err)
		g.mu.Unlock()
	}
}
