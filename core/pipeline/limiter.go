package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of model calls in flight.
// A nil Limiter does not limit.
type Limiter struct {
	sem  *semaphore.Weighted
	size int64
}

// NewLimiter creates a limiter with n slots, n <= 0 returns nil
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		return nil
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(n)),
		size: int64(n),
	}
}

// Acquire blocks until a slot is free or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.sem.Acquire(ctx, 1)
}

func (l *Limiter) Release() {
	if l == nil {
		return
	}
	l.sem.Release(1)
}

// Size returns the number of slots, 0 for an unlimited limiter
func (l *Limiter) Size() int {
	if l == nil {
		return 0
	}
	return int(l.size)
}

func limitCall[T any](ctx context.Context, l *Limiter, call func() (T, error)) (T, error) {
	if err := l.Acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer l.Release()
	return call()
}
