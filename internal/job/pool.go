package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flatbridge/flatbridge/internal/observability"
)

// Task runs on a pool worker. The context is cancelled only when the pool
// shuts down without draining in time.
type Task func(ctx context.Context)

// Pool is a fixed set of workers reading from a bounded queue. Submit never
// blocks.
type Pool struct {
	logger *slog.Logger
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: logger,
		tasks:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(i)
	}
	return p
}

func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		observability.SetJobQueueDepth(len(p.tasks))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued and running tasks. When ctx
// ends first the task context is cancelled and Shutdown still waits for the
// workers to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("job pool drain interrupted: %w", ctx.Err())
	}
}

func (p *Pool) work(worker int) {
	defer p.wg.Done()
	for task := range p.tasks {
		observability.SetJobQueueDepth(len(p.tasks))
		p.run(worker, task)
	}
}

func (p *Pool) run(worker int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job task panicked", slog.Int("worker", worker), slog.Any("panic", r))
		}
	}()
	task(p.ctx)
}
