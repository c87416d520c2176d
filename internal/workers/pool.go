// Package workers provides bounded task pools for the pipeline's slower
// side work. One pool serves chat and voice dispatch, another serves AI
// classification, so a slow AI backend cannot starve notifications.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Close has been called
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool runs submitted tasks with a fixed concurrency bound
type Pool struct {
	name string
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool running at most size tasks concurrently
func NewPool(name string, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		name: name,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Submit schedules fn on the pool. It blocks while the pool is at capacity
// and returns once a slot is acquired; fn then runs on its own goroutine.
// Panics inside fn are recovered and logged so one bad task cannot take the
// process down.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return fmt.Errorf("failed to acquire %s pool slot: %w", p.name, err)
	}

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Panic in %s pool task: %v", p.name, r)
			}
		}()
		fn(ctx)
	}()
	return nil
}

// Close marks the pool closed and waits for in-flight tasks to finish
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Wait blocks until all currently submitted tasks have finished
func (p *Pool) Wait() {
	p.wg.Wait()
}
