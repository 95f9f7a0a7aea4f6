package covey

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Pool.
type Option func(*Config)

// WithCoreWorkers sets the number of workers kept alive even when idle.
func WithCoreWorkers(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.CoreWorkers = n
		}
	}
}

// WithMaxWorkers sets the hard ceiling on concurrently live workers.
func WithMaxWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxWorkers = n
		}
	}
}

// WithIdleTimeout sets how long a worker beyond the core count may sit idle
// before retiring.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.IdleTimeout = d
		}
	}
}

// WithQueueCapacity sets the task queue mode: QueueNone, a bounded size,
// or QueueUnbounded.
func WithQueueCapacity(n int) Option {
	return func(c *Config) {
		if n >= QueueUnbounded {
			c.QueueCapacity = n
		}
	}
}

// WithRejectionPolicy sets the strategy applied when a task cannot be
// admitted to a saturated pool.
func WithRejectionPolicy(p RejectionPolicy) Option {
	return func(c *Config) {
		if p != nil {
			c.Rejection = p
		}
	}
}

// WithWorkerNamer sets the strategy used to name workers.
func WithWorkerNamer(n WorkerNamer) Option {
	return func(c *Config) {
		if n != nil {
			c.Namer = n
		}
	}
}

// WithPanicHandler sets the handler invoked when a task panics.
func WithPanicHandler(h func(interface{})) Option {
	return func(c *Config) {
		c.PanicHandler = h
	}
}

// WithLogger sets the structured logger for pool events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}
