package dispatch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the worker count used when none is configured.
func DefaultPoolSize() int {
	return 2 * runtime.NumCPU()
}

// Pool runs long-lived workers with at most size of them active at once.
// Workers submitted while the pool is full wait for a slot.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewPool returns a pool of size slots; size <= 0 means DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	return &Pool{size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// Go schedules fn without blocking the caller. fn runs once a slot is free
// and holds it until it returns. If ctx ends before a slot frees up, fn never
// runs.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn(ctx)
	}()
}

// Wait blocks until every scheduled worker has returned or timeout elapses.
// It reports whether all workers finished.
func (p *Pool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
