// Package covey provides a bounded, elastic worker pool for Go.
//
// A pool keeps a core set of workers alive, buffers bursts in a configurable
// task queue, grows up to a hard maximum under sustained load, and applies a
// pluggable rejection policy when saturated. Workers beyond the core count
// retire after an idle timeout.
//
// # Quick Start
//
//	pool, err := covey.NewPool(
//	    covey.WithCoreWorkers(4),
//	    covey.WithMaxWorkers(16),
//	    covey.WithQueueCapacity(256),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Shutdown()
//
//	handle, err := pool.Submit(func(ctx context.Context) (interface{}, error) {
//	    return compute(ctx)
//	})
//	if err != nil {
//	    log.Printf("not admitted: %v", err)
//	}
//	value, err := handle.Wait()
//
// Typed results go through the generic wrapper:
//
//	f, _ := covey.Submit(pool, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
//	n, err := f.Wait()
//
// # Dispatch
//
// Submit decides where a task goes, in order: direct handoff to an idle
// worker, creation of a worker while below the core count, the task queue,
// creation of an overflow worker while below the maximum, and finally the
// rejection policy. Queuing before growing past the core count means
// transient bursts are absorbed by buffering; only a full queue pays for
// extra workers.
//
// Tasks handed directly to a worker bypass the queue and may execute out of
// submission order relative to queued tasks. FIFO order holds among tasks
// that pass through the queue.
//
// # Queue modes
//
// QueueCapacity selects the backpressure mode: QueueNone disables buffering
// entirely, a positive value bounds the queue, and QueueUnbounded never
// refuses a task at the cost of unbounded memory growth under sustained
// overload.
//
// # Rejection policies
//
// Abort returns ErrRejected from Submit. Discard drops the task and
// completes its handle with ErrDiscarded. DiscardOldest evicts the head of
// the queue and retries once. CallerRuns executes the task on the
// submitting goroutine; it is the only policy that can make Submit block.
//
// # Lifecycle
//
// A pool moves through Running, ShuttingDown or Stopping, and Terminated,
// never revisiting a state. Shutdown drains queued and running tasks;
// ShutdownNow abandons queued tasks, returns them, and cancels the contexts
// of running ones. Cancellation is cooperative: tasks are expected to watch
// their context, the pool never preempts them. AwaitTermination observes
// termination without affecting it.
//
// # Error handling
//
// A task's error or panic is captured in its Handle and surfaces only when
// the caller inspects it; it never terminates a worker or affects other
// tasks. Sentinel errors (ErrRejected, ErrPoolShutdown, ErrCancelled,
// ErrDiscarded, ErrWaitTimeout) support errors.Is.
//
// # Related packages
//
// Package schedule adds one-shot, fixed-rate, fixed-delay and
// cron-expression scheduling on top of a pool. Package forkjoin provides a
// work-stealing scheduler for recursively-split tasks. Package group runs
// related tasks as a unit with fail-fast or collect-all error handling.
// Package retry resubmits rejected tasks with exponential backoff, package
// poolconfig loads pool options from TOML files, and package
// observability/prometheus exposes pool statistics as Prometheus metrics.
//
// # Thread safety
//
// All exported methods are safe for concurrent use.
package covey
