package covey

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// QueueNone configures a pool without buffering: a submission that finds
// no idle worker either grows the pool or is rejected.
const QueueNone = 0

// QueueUnbounded configures a queue with no capacity limit. Sustained
// overload grows memory without bound.
const QueueUnbounded = -1

// WorkerNamer produces the name of a worker from its numeric id. Names show
// up in log events and stats.
type WorkerNamer func(id int) string

// Config contains all configuration options for the worker pool.
type Config struct {
	// CoreWorkers is the number of workers kept alive even when idle.
	// If 0 the pool is allowed to scale down to zero workers.
	CoreWorkers int

	// MaxWorkers is the hard ceiling on concurrently live workers.
	// If 0, defaults to runtime.NumCPU().
	MaxWorkers int

	// IdleTimeout is how long a worker beyond CoreWorkers may sit idle
	// before retiring. Defaults to 10s.
	IdleTimeout time.Duration

	// QueueCapacity selects the buffering mode: QueueNone for direct
	// handoff only, a positive N for a bounded FIFO, or QueueUnbounded.
	QueueCapacity int

	// Rejection decides the fate of a task that cannot be admitted.
	// Defaults to Abort.
	Rejection RejectionPolicy

	// Namer names workers as they are created.
	Namer WorkerNamer

	// PanicHandler is called with the recovered value when a task panics.
	// The panic is always also captured in the task's handle.
	PanicHandler func(interface{})

	// Logger receives structured pool events (worker created/retired,
	// task rejected, shutdown). Defaults to zap.NewNop().
	Logger *zap.Logger
}

func defaultConfig() Config {
	return Config{
		CoreWorkers:   runtime.NumCPU(),
		MaxWorkers:    runtime.NumCPU() * 4,
		IdleTimeout:   10 * time.Second,
		QueueCapacity: 1024,
		Rejection:     Abort,
		Namer:         defaultNamer,
		Logger:        zap.NewNop(),
	}
}

func defaultNamer(id int) string {
	return fmt.Sprintf("covey-worker-%d", id)
}

func (c *Config) validate() error {
	if c.CoreWorkers < 0 {
		return errInvalidConfig("CoreWorkers must be >= 0")
	}
	if c.MaxWorkers <= 0 {
		return errInvalidConfig("MaxWorkers must be > 0")
	}
	if c.CoreWorkers > c.MaxWorkers {
		return errInvalidConfig("CoreWorkers must not exceed MaxWorkers")
	}
	if c.QueueCapacity < QueueUnbounded {
		return errInvalidConfig("QueueCapacity must be >= -1")
	}
	if c.IdleTimeout <= 0 {
		return errInvalidConfig("IdleTimeout must be > 0")
	}
	if c.Rejection == nil {
		return errInvalidConfig("Rejection policy must not be nil")
	}
	return nil
}
