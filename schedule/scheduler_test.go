package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldre/covey"
)

func newTestPool(t *testing.T) *covey.Pool {
	t.Helper()
	p, err := covey.NewPool(
		covey.WithCoreWorkers(2),
		covey.WithMaxWorkers(4),
		covey.WithQueueCapacity(64),
	)
	require.NoError(t, err)
	t.Cleanup(func() { p.ShutdownNow() })
	return p
}

func TestSchedule_OneShotFiresAfterDelay(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	fired := make(chan time.Time, 1)
	begin := time.Now()
	_, err := s.Schedule(func(ctx context.Context) (interface{}, error) {
		fired <- time.Now()
		return nil, nil
	}, 50*time.Millisecond)
	require.NoError(t, err)

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(begin), 45*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot entry never fired")
	}

	// One-shot entries do not repeat.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, fired, 0)
}

func TestSchedule_ValidatesArguments(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	_, err := s.Schedule(nil, time.Millisecond)
	assert.ErrorIs(t, err, ErrNilTask)
	_, err = s.Schedule(func(ctx context.Context) (interface{}, error) { return nil, nil }, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidDelay)
	_, err = s.AtFixedRate(func(ctx context.Context) (interface{}, error) { return nil, nil }, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestAtFixedRate_FiresRepeatedly(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	var count atomic.Int64
	e, err := s.AtFixedRate(func(ctx context.Context) (interface{}, error) {
		count.Add(1)
		return nil, nil
	}, 0, 50*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(275 * time.Millisecond)
	e.Cancel()
	got := count.Load()

	// Fires at 0, 50, 100, ... with scheduling jitter.
	assert.GreaterOrEqual(t, got, int64(3))
	assert.LessOrEqual(t, got, int64(7))

	// No more runs after cancellation.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, got, count.Load())
}

// A fixed-rate run that outlasts its period is followed back-to-back by the
// next run, but runs never overlap and there is no fractional catch-up
// beyond that.
func TestAtFixedRate_SlowTaskNeverOverlaps(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	var inFlight, maxInFlight, runs atomic.Int64
	e, err := s.AtFixedRate(func(ctx context.Context) (interface{}, error) {
		n := inFlight.Add(1)
		for {
			old := maxInFlight.Load()
			if n <= old || maxInFlight.CompareAndSwap(old, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(80 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}, 0, 30*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	e.Cancel()

	assert.Equal(t, int64(1), maxInFlight.Load(), "runs of one entry must never overlap")
	// Back-to-back: roughly one run per 80ms of task duration, not one
	// per 30ms period.
	assert.LessOrEqual(t, runs.Load(), int64(6))
	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestAtFixedRate_SkipPolicyDropsMissedFirings(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool, WithMissedFirings(Skip))
	defer s.Close()

	var inFlight, maxInFlight, runs atomic.Int64
	e, err := s.AtFixedRate(func(ctx context.Context) (interface{}, error) {
		n := inFlight.Add(1)
		for {
			old := maxInFlight.Load()
			if n <= old || maxInFlight.CompareAndSwap(old, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(70 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}, 0, 50*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(350 * time.Millisecond)
	e.Cancel()

	assert.Equal(t, int64(1), maxInFlight.Load())
	// Missed slots are skipped, so at most one run per 100ms cycle.
	assert.GreaterOrEqual(t, runs.Load(), int64(2))
	assert.LessOrEqual(t, runs.Load(), int64(4))
}

func TestWithFixedDelay_GapsFromCompletion(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	const delay = 50 * time.Millisecond
	var mu sync.Mutex
	var starts, ends []time.Time

	e, err := s.WithFixedDelay(func(ctx context.Context) (interface{}, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(40 * time.Millisecond)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return nil, nil
	}, 0, delay)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	e.Cancel()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(starts), 2)
	for i := 1; i < len(starts) && i <= len(ends); i++ {
		gap := starts[i].Sub(ends[i-1])
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond,
			"run %d started %v after the previous completion, want >= %v", i, gap, delay)
	}
}

func TestCron_ValidatesExpression(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	fn := func(ctx context.Context) (interface{}, error) { return nil, nil }

	e, err := s.Cron("*/5 * * * *", fn)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, 1, s.Len())

	_, err = s.Cron("not a cron expr", fn)
	assert.Error(t, err)
}

func TestScheduler_ClosedRejectsNewEntries(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	s.Close()

	_, err := s.Schedule(func(ctx context.Context) (interface{}, error) { return nil, nil }, time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEntry_CancelIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	e, err := s.Schedule(func(ctx context.Context) (interface{}, error) { return nil, nil }, time.Hour)
	require.NoError(t, err)

	assert.True(t, e.Cancel())
	assert.False(t, e.Cancel())
	assert.True(t, e.Cancelled())
}

func TestScheduler_EntriesFireInTimeOrder(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	defer s.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) covey.Func {
		return func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	// Added out of order; must fire in delay order.
	_, err := s.Schedule(record("third"), 120*time.Millisecond)
	require.NoError(t, err)
	_, err = s.Schedule(record("first"), 20*time.Millisecond)
	require.NoError(t, err)
	_, err = s.Schedule(record("second"), 70*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}
