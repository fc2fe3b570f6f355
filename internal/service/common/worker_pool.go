package common

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned when submitting to a closed WorkerPool
var ErrPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs blocking tasks (model inference, subprocesses) on a fixed
// number of workers fed by a bounded queue. Submit blocks while the queue is full.
type WorkerPool struct {
	tasks     chan poolTask
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	size      int
}

type poolTask struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// NewWorkerPool starts size workers with a queue of the same capacity
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	p := &WorkerPool{
		tasks: make(chan poolTask, size),
		size:  size,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Size returns the number of workers
func (p *WorkerPool) Size() int {
	return p.size
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		// Skip work whose caller already gave up while it sat in the queue
		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		t.done <- t.fn(t.ctx)
	}
}

// Submit enqueues fn and waits for it to finish.
// It returns ctx.Err() if ctx ends while waiting for admission or for the result.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	t := poolTask{ctx: ctx, fn: fn, done: make(chan error, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued tasks to finish
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// RunInPool submits fn to pool and returns its typed result
func RunInPool[T any](ctx context.Context, pool *WorkerPool, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := pool.Submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
