// Package ratelimit bounds the number of concurrently in-flight
// persistence operations.
package ratelimit

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter admits at most N tasks at a time. Excess tasks block in
// submission order; semaphore.Weighted services waiters FIFO, so
// admission is fair.
type Limiter struct {
	sem *semaphore.Weighted
	n   int
}

// New creates a Limiter with the given concurrency bound. Non-positive
// values are coerced to 1.
func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Limit returns the effective concurrency bound.
func (l *Limiter) Limit() int { return l.n }

// Run executes task once a slot is free and releases the slot when the
// task returns. The task's error is passed through unchanged.
func (l *Limiter) Run(ctx context.Context, task func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return task()
}
