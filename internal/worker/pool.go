package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

// ErrClosed is returned by Submit once Stop has been called.
var ErrClosed = errors.New("worker pool closed")

// Task is a unit of background persistence work.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed set of goroutines. Tasks queued before
// Stop still run; Stop waits for them.
type Pool struct {
	log         *logger.Logger
	metrics     *observability.Metrics
	concurrency int

	tasks chan Task
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewPool(baseLog *logger.Logger, concurrency int, metrics *observability.Metrics) *Pool {
	if concurrency < 1 {
		concurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		log:         baseLog.With("component", "PersistenceWorker"),
		metrics:     metrics,
		concurrency: concurrency,
		tasks:       make(chan Task, concurrency*16),
	}
}

func (p *Pool) Concurrency() int { return p.concurrency }

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.log.Info("Starting persistence worker pool", "concurrency", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runLoop(ctx, i+1)
	}
}

// Submit queues task. It blocks while the queue is full, bounded by ctx.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks and waits until every queued task has run or ctx
// ends.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		// Nobody will drain the queue; run what is left inline.
		for task := range p.tasks {
			p.run(ctx, 0, task)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("Persistence worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(ctx, workerID, task)
	}
}

func (p *Pool) run(ctx context.Context, workerID int, task Task) {
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.log.Error("Persistence task panic", "worker_id", workerID, "panic", r)
		}
		p.metrics.IncWorkerTask(panicked)
	}()
	task(ctx)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
