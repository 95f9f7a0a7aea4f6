package covey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_WaitTimeout(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1))
	require.NoError(t, err)
	defer p.ShutdownNow()

	release := make(chan struct{})
	h, err := p.Submit(blocker(nil, release))
	require.NoError(t, err)

	_, err = h.WaitTimeout(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)

	close(release)
	_, err = h.WaitTimeout(2 * time.Second)
	assert.NoError(t, err)
}

func TestHandle_TryResult(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1))
	require.NoError(t, err)
	defer p.ShutdownNow()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	h, err := p.Submit(blocker(started, release))
	require.NoError(t, err)
	<-started

	_, _, done := h.TryResult()
	assert.False(t, done)

	close(release)
	require.Eventually(t, func() bool {
		_, _, done := h.TryResult()
		return done
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHandle_CancelQueuedTask(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1), WithQueueCapacity(4))
	require.NoError(t, err)
	defer p.ShutdownNow()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{}, 1)
	_, err = p.Submit(blocker(started, release))
	require.NoError(t, err)
	<-started

	ran := false
	h, err := p.Submit(func(ctx context.Context) (interface{}, error) {
		ran = true
		return nil, nil
	})
	require.NoError(t, err)

	assert.True(t, h.Cancel())
	_, err = h.Wait()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, ran)
}

func TestHandle_CancelRunningTaskIsCooperative(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1))
	require.NoError(t, err)
	defer p.ShutdownNow()

	started := make(chan struct{}, 1)
	h, err := p.Submit(func(ctx context.Context) (interface{}, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	assert.True(t, h.Cancel())
	_, err = h.WaitTimeout(2 * time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_CancelCompletedTask(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1))
	require.NoError(t, err)
	defer p.ShutdownNow()

	h, err := p.Submit(noop)
	require.NoError(t, err)
	_, err = h.WaitTimeout(2 * time.Second)
	require.NoError(t, err)

	assert.False(t, h.Cancel())
}

func TestHandle_HasUniqueID(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1))
	require.NoError(t, err)
	defer p.ShutdownNow()

	a, err := p.Submit(noop)
	require.NoError(t, err)
	b, err := p.Submit(noop)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestFuture_TypedResult(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(2), WithMaxWorkers(2))
	require.NoError(t, err)
	defer p.ShutdownNow()

	f, err := Submit(p, func(ctx context.Context) (int, error) {
		return 7 * 6, nil
	})
	require.NoError(t, err)

	n, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestFuture_SubmitCtxCancellation(t *testing.T) {
	p, err := NewPool(WithCoreWorkers(1), WithMaxWorkers(1))
	require.NoError(t, err)
	defer p.ShutdownNow()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	f, err := SubmitCtx(ctx, p, func(ctx context.Context) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, err)
	<-started

	cancel()
	_, err = f.WaitTimeout(2 * time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
