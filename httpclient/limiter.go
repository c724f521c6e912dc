package httpclient

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of in-flight logical calls. It is a counting
// semaphore with FIFO grant order; one permit is held for the duration of a
// logical call, covering every attempt and backoff wait within it.
//
// A Limiter may be shared by several clients to enforce one permit pool
// across a process.
type Limiter struct {
	sem  *semaphore.Weighted
	size int64
}

// NewLimiter creates a limiter with the given number of permits (minimum 1).
func NewLimiter(n int64) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(n), size: n}
}

// Size returns the permit pool size.
func (l *Limiter) Size() int64 { return l.size }

// Acquire blocks until a permit is free or ctx is done. Waiters are served
// in FIFO order.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire grabs a permit without blocking.
func (l *Limiter) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release returns a permit. Each successful Acquire must be matched by
// exactly one Release.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
