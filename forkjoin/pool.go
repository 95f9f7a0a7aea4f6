// Package forkjoin provides a work-stealing scheduler for recursively-split
// divide-and-conquer tasks.
//
// Every worker owns a private deque. Fork pushes a subtask onto the forking
// worker's deque; idle workers steal from the opposite end of a randomly
// chosen victim's deque. Join does not idle: a joining worker keeps running
// its own and stolen subtasks until the joined result is ready, so deeply
// recursive computations cannot starve themselves.
//
//	pool, _ := forkjoin.New(forkjoin.WithWorkers(8))
//	defer pool.Shutdown()
//
//	task := forkjoin.Range(1, n+1, 1024,
//	    func(ctx context.Context, lo, hi int) (int, error) {
//	        sum := 0
//	        for i := lo; i < hi; i++ {
//	            sum += i
//	        }
//	        return sum, nil
//	    },
//	    func(a, b int) int { return a + b },
//	)
//	total, err := forkjoin.Invoke(pool, task)
package forkjoin

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Errors returned by the fork/join pool.
var (
	ErrPoolShutdown = errors.New("forkjoin: pool is shut down")
	ErrNotInPool    = errors.New("forkjoin: fork called outside a pool computation")
	ErrNilTask      = errors.New("forkjoin: task is nil")
)

// Config holds fork/join pool settings.
type Config struct {
	// Workers is the number of worker goroutines. Defaults to
	// runtime.NumCPU().
	Workers int

	// DequeCapacity is the initial capacity of each worker's private
	// deque; it grows as needed. Defaults to 256.
	DequeCapacity int

	// SpinCount is how many times an idle worker re-checks for work
	// before parking. Defaults to 30.
	SpinCount int

	// MaxParkTime bounds how long an idle worker sleeps before looking
	// again. Defaults to 10ms.
	MaxParkTime time.Duration

	// Logger receives structured pool events. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// Option configures a fork/join pool.
type Option func(*Config)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithDequeCapacity sets the initial per-worker deque capacity.
func WithDequeCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.DequeCapacity = n
		}
	}
}

// WithSpinCount sets how long idle workers spin before parking.
func WithSpinCount(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.SpinCount = n
		}
	}
}

// WithMaxParkTime sets the maximum idle park duration.
func WithMaxParkTime(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxParkTime = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Stats is a snapshot of fork/join pool activity.
type Stats struct {
	Workers  int
	Executed uint64 // subtasks run, by any worker
	Stolen   uint64 // subtasks taken from another worker's deque
}

// Pool is a fixed set of workers executing fork/join computations.
type Pool struct {
	conf    Config
	workers []*worker
	inbox   chan item // external submissions from Invoke

	stopped int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup

	executed uint64 // atomic
	stolen   uint64 // atomic
}

// New creates a fork/join pool and starts its workers.
func New(opts ...Option) (*Pool, error) {
	conf := Config{
		Workers:       runtime.NumCPU(),
		DequeCapacity: 256,
		SpinCount:     30,
		MaxParkTime:   10 * time.Millisecond,
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&conf)
	}
	if conf.Workers <= 0 {
		return nil, errors.New("forkjoin: Workers must be > 0")
	}

	p := &Pool{
		conf:    conf,
		workers: make([]*worker, conf.Workers),
		inbox:   make(chan item, 64),
		stopCh:  make(chan struct{}),
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i, p)
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker) {
			defer p.wg.Done()
			w.run()
		}(w)
	}
	p.conf.Logger.Debug("forkjoin pool started", zap.Int("workers", conf.Workers))
	return p, nil
}

// Shutdown stops the workers. In-flight subtasks run to completion; forked
// subtasks that were never picked up stay unexecuted. Idempotent.
func (p *Pool) Shutdown() {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return
	}
	close(p.stopCh)
	p.wakeAll()
	p.wg.Wait()
	p.conf.Logger.Debug("forkjoin pool stopped",
		zap.Uint64("executed", atomic.LoadUint64(&p.executed)),
		zap.Uint64("stolen", atomic.LoadUint64(&p.stolen)))
}

// Stats returns a racy snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  len(p.workers),
		Executed: atomic.LoadUint64(&p.executed),
		Stolen:   atomic.LoadUint64(&p.stolen),
	}
}

func (p *Pool) isStopped() bool {
	return atomic.LoadInt32(&p.stopped) == 1
}

// submit hands a root task to the pool from outside a computation.
func (p *Pool) submit(it item) error {
	if p.isStopped() {
		return ErrPoolShutdown
	}
	select {
	case p.inbox <- it:
		p.wakeAll()
		return nil
	case <-p.stopCh:
		return ErrPoolShutdown
	}
}

func (p *Pool) wakeAll() {
	for _, w := range p.workers {
		w.wake()
	}
}
