// Package workerpool runs a bounded number of goroutines over a job queue.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"imgsniff/pkg/logger"
)

// Job is one unit of work. Index is the position of Item in the caller's
// input and is echoed back in the Result.
type Job[T any] struct {
	Index int
	Item  T
}

type Result[R any] struct {
	Index    int
	Value    R
	Duration time.Duration
}

// ProcessFunc handles a single job. It must not panic and should return
// promptly once its own context is done.
type ProcessFunc[T, R any] func(job Job[T]) R

// Pool manages a fixed set of workers
type Pool[T, R any] struct {
	numWorkers  int
	jobQueue    chan Job[T]
	resultQueue chan Result[R]
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     ProcessFunc[T, R]
	logger      logger.Logger
	stopOnce    sync.Once
}

func New[T, R any](numWorkers int, process ProcessFunc[T, R], log logger.Logger) *Pool[T, R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool[T, R]{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job[T], numWorkers*2),
		resultQueue: make(chan Result[R], numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      logger.OrGlobal(log),
	}
}

func (p *Pool[T, R]) Start() {
	p.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, waits for queued jobs to finish and then closes
// the result channel. Results must be drained concurrently, and Submit must
// not race with Stop.
func (p *Pool[T, R]) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobQueue)
		p.wg.Wait()
		close(p.resultQueue)
		p.logger.Debug("Worker pool stopped")
	})
}

func (p *Pool[T, R]) Submit(job Job[T]) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
	}
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

func (p *Pool[T, R]) Results() <-chan Result[R] {
	return p.resultQueue
}

func (p *Pool[T, R]) Size() int {
	return p.numWorkers
}

func (p *Pool[T, R]) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		start := time.Now()
		value := p.process(job)
		p.resultQueue <- Result[R]{Index: job.Index, Value: value, Duration: time.Since(start)}
	}

	p.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

// Map applies fn to every item with at most workers goroutines and returns
// the values in input order. onResult, if set, is called from the calling
// goroutine as each item completes, with the running completion count.
func Map[T, R any](items []T, workers int, fn func(index int, item T) R,
	onResult func(done int, r Result[R]), log logger.Logger) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}
	if workers > len(items) {
		workers = len(items)
	}

	pool := New(workers, func(job Job[T]) R {
		return fn(job.Index, job.Item)
	}, log)
	pool.Start()

	go func() {
		for i, item := range items {
			if err := pool.Submit(Job[T]{Index: i, Item: item}); err != nil {
				return
			}
		}
	}()

	for done := 1; done <= len(items); done++ {
		r := <-pool.Results()
		out[r.Index] = r.Value
		if onResult != nil {
			onResult(done, r)
		}
	}
	pool.Stop()
	return out
}
