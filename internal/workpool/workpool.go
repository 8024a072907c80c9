// Package workpool bounds how many blocking jobs run at once.
package workpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool runs jobs on the caller's goroutine once a slot is free.
// Callers waiting for a slot do not hold up anyone else's I/O.
type Pool struct {
	sem *semaphore.Weighted
}

// New returns a pool allowing size concurrent jobs. size < 1 is treated as 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do waits for a slot and runs fn. It returns ctx.Err() if ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
