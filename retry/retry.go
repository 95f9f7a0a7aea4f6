// Package retry resubmits rejected tasks with exponential backoff.
//
// A saturated pool configured with the Abort policy refuses new work. The
// Submitter turns that refusal into a bounded wait-and-retry loop, which is
// often the right behavior for batch producers that can tolerate latency
// but not lost tasks.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/haldre/covey"
)

const (
	defaultInitialInterval = 10 * time.Millisecond
	defaultMaxInterval     = time.Second
	defaultMaxTries        = 10
)

// Submitter wraps a pool and retries submissions refused by the rejection
// policy. Shutdown errors and invalid tasks are never retried.
type Submitter struct {
	pool *covey.Pool

	initialInterval time.Duration
	maxInterval     time.Duration
	maxTries        uint
	logger          *zap.Logger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithInitialInterval sets the first backoff delay.
func WithInitialInterval(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.initialInterval = d
		}
	}
}

// WithMaxInterval caps the backoff delay.
func WithMaxInterval(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.maxInterval = d
		}
	}
}

// WithMaxTries bounds the total number of submission attempts.
func WithMaxTries(n uint) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.maxTries = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSubmitter wraps pool with retrying submission.
func NewSubmitter(pool *covey.Pool, opts ...Option) *Submitter {
	s := &Submitter{
		pool:            pool,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		maxTries:        defaultMaxTries,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit submits fn, retrying while the pool rejects it. It returns the
// admitted task's handle, or the last error once the attempt budget or ctx
// is exhausted.
func (s *Submitter) Submit(ctx context.Context, fn covey.Func) (*covey.Handle, error) {
	attempt := 0
	op := func() (*covey.Handle, error) {
		attempt++
		h, err := s.pool.SubmitCtx(ctx, fn)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, covey.ErrRejected) {
			return nil, backoff.Permanent(err)
		}
		s.logger.Debug("submission rejected, backing off",
			zap.Int("attempt", attempt))
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialInterval
	bo.MaxInterval = s.maxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.maxTries))
}
