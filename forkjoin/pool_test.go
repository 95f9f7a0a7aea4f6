package forkjoin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldre/covey"
)

func sumLeaf(ctx context.Context, lo, hi int) (int, error) {
	s := 0
	for i := lo; i < hi; i++ {
		s += i
	}
	return s, nil
}

func add(a, b int) int { return a + b }

func TestPool_InvokeComputesResult(t *testing.T) {
	p, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer p.Shutdown()

	task := NewTask(func(ctx context.Context) (string, error) {
		return "done", nil
	})
	v, err := Invoke(p, task)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestPool_RangeSumMatchesSequential(t *testing.T) {
	p, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer p.Shutdown()

	cases := []struct {
		n         int
		threshold int
	}{
		{1, 1},
		{10, 3},
		{1000, 50},
		{100000, 128},
	}
	for _, tc := range cases {
		task := Range(1, tc.n+1, tc.threshold, sumLeaf, add)
		got, err := Invoke(p, task)
		require.NoError(t, err)
		assert.Equal(t, tc.n*(tc.n+1)/2, got)
	}
}

func TestPool_SingleWorkerStillCompletes(t *testing.T) {
	p, err := New(WithWorkers(1))
	require.NoError(t, err)
	defer p.Shutdown()

	task := Range(1, 10001, 100, sumLeaf, add)
	got, err := Invoke(p, task)
	require.NoError(t, err)
	assert.Equal(t, 10000*10001/2, got)
}

func TestPool_WorkIsStolen(t *testing.T) {
	p, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer p.Shutdown()

	// A large splittable range loads one deque first; the other workers
	// have nothing of their own, so progress requires stealing.
	task := Range(1, 200001, 64, sumLeaf, add)
	got, err := Invoke(p, task)
	require.NoError(t, err)
	require.Equal(t, 200000*200001/2, got)

	stats := p.Stats()
	assert.Equal(t, 4, stats.Workers)
	assert.NotZero(t, stats.Executed)
	assert.NotZero(t, stats.Stolen)
}

func TestPool_LeafErrorPropagates(t *testing.T) {
	p, err := New(WithWorkers(2))
	require.NoError(t, err)
	defer p.Shutdown()

	boom := errors.New("bad leaf")
	task := Range(0, 100, 10, func(ctx context.Context, lo, hi int) (int, error) {
		if lo >= 50 {
			return 0, boom
		}
		return 0, nil
	}, add)
	_, err = Invoke(p, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPool_PanicBecomesPanicError(t *testing.T) {
	p, err := New(WithWorkers(2))
	require.NoError(t, err)
	defer p.Shutdown()

	task := NewTask(func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
	_, err = Invoke(p, task)
	require.Error(t, err)

	var pe *covey.PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestPool_ForkOutsidePoolFails(t *testing.T) {
	task := NewTask(func(ctx context.Context) (int, error) { return 1, nil })
	err := task.Fork(context.Background())
	assert.ErrorIs(t, err, ErrNotInPool)
}

func TestPool_InvokeAfterShutdown(t *testing.T) {
	p, err := New(WithWorkers(2))
	require.NoError(t, err)
	p.Shutdown()

	task := NewTask(func(ctx context.Context) (int, error) { return 1, nil })
	_, err = Invoke(p, task)
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestPool_ShutdownIsIdempotent(t *testing.T) {
	p, err := New(WithWorkers(2))
	require.NoError(t, err)
	p.Shutdown()
	p.Shutdown()
}

func TestPool_NilTaskRejected(t *testing.T) {
	p, err := New(WithWorkers(1))
	require.NoError(t, err)
	defer p.Shutdown()

	_, err = Invoke[int](p, nil)
	assert.ErrorIs(t, err, ErrNilTask)
}
