package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsAllTasks(t *testing.T) {
	pool := NewPool("test", 4)
	var count int64

	for i := 0; i < 20; i++ {
		if err := pool.Submit(context.Background(), func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	pool.Wait()

	if count != 20 {
		t.Errorf("ran %d tasks, want 20", count)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool("test", 2)
	var running, peak int64
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		if err := pool.Submit(context.Background(), func(ctx context.Context) {
			now := atomic.AddInt64(&running, 1)
			mu.Lock()
			if now > peak {
				peak = now
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	pool.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool("test", 1)
	pool.Close()

	err := pool.Submit(context.Background(), func(ctx context.Context) {})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after close = %v, want ErrPoolClosed", err)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	pool := NewPool("test", 1)
	block := make(chan struct{})

	if err := pool.Submit(context.Background(), func(ctx context.Context) {
		<-block
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, func(ctx context.Context) {})
	if err == nil {
		t.Error("expected error submitting with cancelled context while pool is full")
	}

	close(block)
	pool.Wait()
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool("test", 1)

	if err := pool.Submit(context.Background(), func(ctx context.Context) {
		panic("task exploded")
	}); err != nil {
		t.Fatal(err)
	}
	pool.Wait()

	// Pool must still accept work after a panic.
	var ran bool
	if err := pool.Submit(context.Background(), func(ctx context.Context) {
		ran = true
	}); err != nil {
		t.Fatal(err)
	}
	pool.Wait()
	if !ran {
		t.Error("pool should keep working after a panicking task")
	}
}
