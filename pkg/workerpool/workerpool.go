package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/andrej220/fanout/pkg/lg"
)

const (
	TotalMaxWorkers = 10
)

var ErrPoolClosed = errors.New("worker pool is shutting down")

type JobFunc[T any] func(ctx context.Context, payload T) error

type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
}

// Pool runs jobs on at most maxWorkers goroutines. Admission is a semaphore:
// Submit blocks until a worker slot is free.
type Pool[T any] struct {
	sem           chan struct{}
	activeWorkers int32
	peakWorkers   int32
	wg            sync.WaitGroup
	quit          chan struct{}
	stopOnce      sync.Once
	maxWorkers    int
}

func NewPool[T any](maxWorkers int) *Pool[T] {
	if maxWorkers <= 0 {
		maxWorkers = TotalMaxWorkers
	}
	return &Pool[T]{
		sem:        make(chan struct{}, maxWorkers),
		quit:       make(chan struct{}),
		maxWorkers: maxWorkers,
	}
}

// Submit waits for a free slot and starts the job. A job that is not started
// because its context ended or the pool stopped still gets its CleanupFunc.
func (p *Pool[T]) Submit(job Job[T]) error {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	logger := lg.FromContext(job.Ctx)

	select {
	case <-p.quit:
		p.cleanup(job)
		return ErrPoolClosed
	default:
	}

	select {
	case p.sem <- struct{}{}:
	case <-job.Ctx.Done():
		logger.Debug("Job not started, context done", lg.Any("job", job.Payload), lg.Err(job.Ctx.Err()))
		p.cleanup(job)
		return job.Ctx.Err()
	case <-p.quit:
		logger.Info("Worker pool is shutting down, job rejected", lg.Any("job", job.Payload))
		p.cleanup(job)
		return ErrPoolClosed
	}

	p.wg.Add(1)
	active := atomic.AddInt32(&p.activeWorkers, 1)
	for {
		peak := atomic.LoadInt32(&p.peakWorkers)
		if active <= peak || atomic.CompareAndSwapInt32(&p.peakWorkers, peak, active) {
			break
		}
	}
	go p.worker(job)
	return nil
}

func (p *Pool[T]) worker(job Job[T]) {
	defer p.wg.Done()
	defer func() { <-p.sem }()
	defer atomic.AddInt32(&p.activeWorkers, -1)
	defer p.cleanup(job)

	logger := lg.FromContext(job.Ctx).With(lg.Any("job", job.Payload))
	logger.Debug("Worker started", lg.Int32("workers", atomic.LoadInt32(&p.activeWorkers)))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.Fn(job.Ctx, job.Payload)
	}()
	if err != nil {
		logger.Warn("Worker error", lg.Err(err))
		return
	}
	logger.Debug("Worker finished")
}

func (p *Pool[T]) cleanup(job Job[T]) {
	if job.CleanupFunc != nil {
		job.CleanupFunc()
	}
}

// Wait blocks until every started job has finished.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}

// Stop rejects further submissions and waits for running jobs.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}

// PeakWorkers is the highest number of jobs that ran at the same time.
func (p *Pool[T]) PeakWorkers() int32 {
	return atomic.LoadInt32(&p.peakWorkers)
}

func (p *Pool[T]) MaxWorkers() int {
	return p.maxWorkers
}
