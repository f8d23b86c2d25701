package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(2, 4, nil)
	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		if err := pool.Submit(func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if ran.Load() != 4 {
		t.Fatalf("ran = %d, want 4", ran.Load())
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	pool := NewPool(1, 1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	if err := pool.Submit(func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit(first) error = %v", err)
	}
	<-started
	if err := pool.Submit(func(context.Context) {}); err != nil {
		t.Fatalf("Submit(queued) error = %v", err)
	}
	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit(overflow) error = %v, want ErrQueueFull", err)
	}

	close(release)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Submit(after shutdown) error = %v, want ErrPoolClosed", err)
	}
}

func TestPoolShutdownCancelsTaskContextOnDeadline(t *testing.T) {
	pool := NewPool(1, 0, nil)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := pool.Submit(func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Submit() error = %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want deadline exceeded", err)
	}
	select {
	case <-cancelled:
	default:
		t.Fatal("task context was not cancelled")
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	pool := NewPool(1, 2, nil)
	var ran atomic.Bool
	_ = pool.Submit(func(context.Context) { panic("boom") })
	_ = pool.Submit(func(context.Context) { ran.Store(true) })
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !ran.Load() {
		t.Fatal("task after panic did not run")
	}
}
