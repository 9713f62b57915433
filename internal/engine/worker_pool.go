package engine

import (
	"context"
	"errors"
	"sync"
)

var errPoolClosed = errors.New("worker pool closed")

// workerPool is a fixed-size goroutine pool with a bounded input queue. One
// pool is built per Engine and shared by every blocking handler call.
type workerPool[T any] struct {
	queue   chan T
	process func(T)
	size    int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T any](n, cap int, fn func(T)) *workerPool[T] {
	p := &workerPool[T]{
		queue:   make(chan T, cap),
		process: fn,
		size:    n,
		done:    make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.queue {
				p.process(j)
			}
		}()
	}
	return p
}

// Submit enqueues t, waiting for queue space until ctx is done or the pool
// starts draining.
func (p *workerPool[T]) Submit(ctx context.Context, t T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPoolClosed
	}
	select {
	case p.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return errPoolClosed
	}
}

// Drain stops accepting work, lets queued jobs finish and waits for the workers.
func (p *workerPool[T]) Drain() {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// QueueLen returns how many jobs are currently queued.
func (p *workerPool[T]) QueueLen() int {
	return len(p.queue)
}

// Size returns the number of workers.
func (p *workerPool[T]) Size() int {
	return p.size
}

// QueueCap returns the total queue capacity.
func (p *workerPool[T]) QueueCap() int {
	return cap(p.queue)
}
