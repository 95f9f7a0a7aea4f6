package forkjoin

import "context"

// Range builds a task that computes over the half-open interval [lo, hi) by
// recursive splitting. Intervals at or below threshold run leaf directly;
// larger intervals split in half, fork the right half, compute the left half
// on the current worker, and merge the two results.
func Range[T any](lo, hi, threshold int, leaf func(ctx context.Context, lo, hi int) (T, error), merge func(a, b T) T) *Task[T] {
	if threshold < 1 {
		threshold = 1
	}
	return NewTask(func(ctx context.Context) (T, error) {
		return computeRange(ctx, lo, hi, threshold, leaf, merge)
	})
}

func computeRange[T any](ctx context.Context, lo, hi, threshold int, leaf func(ctx context.Context, lo, hi int) (T, error), merge func(a, b T) T) (T, error) {
	var zero T
	if hi-lo <= threshold {
		return leaf(ctx, lo, hi)
	}
	mid := lo + (hi-lo)/2
	right := NewTask(func(ctx context.Context) (T, error) {
		return computeRange(ctx, mid, hi, threshold, leaf, merge)
	})
	if err := right.Fork(ctx); err != nil {
		// Outside a pool: fall back to sequential evaluation.
		a, aerr := computeRange(ctx, lo, mid, threshold, leaf, merge)
		if aerr != nil {
			return zero, aerr
		}
		b, berr := computeRange(ctx, mid, hi, threshold, leaf, merge)
		if berr != nil {
			return zero, berr
		}
		return merge(a, b), nil
	}
	a, aerr := computeRange(ctx, lo, mid, threshold, leaf, merge)
	b, berr := right.Join(ctx)
	if aerr != nil {
		return zero, aerr
	}
	if berr != nil {
		return zero, berr
	}
	return merge(a, b), nil
}
