// ============================================================================
// SpanStream Local Worker Pool Backend
// ============================================================================
//
// Package: pkg/dispatch
// File: pool.go
// Purpose: Bounded in-process parallelism for partition fetches.
//
// Design:
//   Classic worker pool: a fixed number of worker goroutines consume a
//   shared task channel, so at most n partition fetches run at once no
//   matter how many the dispatcher submits.
//
// Lifecycle:
//   1. NewLocalPool(reg, n) starts n workers.
//   2. Fetch(ctx, req) submits a task and waits for its reply.
//   3. Close() closes stopCh and waits for workers to drain.
//
// Concurrency control:
//   - taskCh:  buffered, decouples submission from execution
//   - stopCh:  closed once, tells workers and blocked submitters to exit
//   - wg:      tracks worker goroutines for graceful shutdown
//   - mu:      protects the closed flag
//
// ============================================================================

package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/spanstream/spanstream/pkg/service"
)

var (
	// ErrPoolClosed is returned when a fetch is submitted after Close.
	ErrPoolClosed = errors.New("local pool is closed")
)

// poolTask carries one partition fetch and its reply channel.
type poolTask struct {
	ctx   context.Context
	req   PartitionRequest
	reply chan poolResult
}

type poolResult struct {
	batches []service.Batch
	err     error
}

// LocalPool executes partition fetches on a fixed set of goroutines.
type LocalPool struct {
	registry *service.Registry
	workers  int
	taskCh   chan poolTask
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// NewLocalPool starts a pool of n workers backed by reg.
func NewLocalPool(reg *service.Registry, n int) *LocalPool {
	if n < 1 {
		n = 1
	}
	p := &LocalPool{
		registry: reg,
		workers:  n,
		taskCh:   make(chan poolTask, n),
		stopCh:   make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *LocalPool) Name() string { return "local_pool" }

func (p *LocalPool) Workers() int { return p.workers }

// Fetch submits the request and blocks until a worker replies, the caller's
// context is cancelled, or the pool shuts down.
func (p *LocalPool) Fetch(ctx context.Context, req PartitionRequest) ([]service.Batch, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	task := poolTask{ctx: ctx, req: req, reply: make(chan poolResult, 1)}

	select {
	case p.taskCh <- task:
	case <-p.stopCh:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-task.reply:
		return res.batches, res.err
	case <-p.stopCh:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers and waits for in-flight fetches to finish.
func (p *LocalPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	return nil
}

// worker loops over the task channel until the pool stops.
func (p *LocalPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.taskCh:
			if err := task.ctx.Err(); err != nil {
				task.reply <- poolResult{err: err}
				continue
			}
			batches, err := fetchLocal(task.ctx, p.registry, task.req)
			task.reply <- poolResult{batches: batches, err: err}
		}
	}
}
