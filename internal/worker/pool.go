package worker

import (
	"context"
	"errors"
	"sync"
)

// Job is a unit of work submitted to the Pool.
type Job func(ctx context.Context) error

// ErrPoolClosed is returned if a Submit is attempted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs jobs using a fixed number of goroutines. The first job error
// cancels the context handed to the remaining jobs and is returned by Close.
type Pool struct {
	jobs    chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	workers int

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once

	cancel context.CancelFunc
	errMu  sync.Mutex
	err    error
}

// New creates a pool with the given number of workers and queue capacity.
func New(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &Pool{
		jobs:    make(chan Job, queue),
		done:    make(chan struct{}),
		workers: workers,
		cancel:  func() {},
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers. They exit when the queue is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if ctx.Err() != nil {
					p.fail(ctx.Err())
					continue
				}
				if err := job(ctx); err != nil {
					p.fail(err)
				}
			}
		}()
	}
}

func (p *Pool) fail(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
		p.cancel()
	}
}

// Submit enqueues a job, blocking while the queue is full. It returns
// promptly if ctx is canceled or the pool is closed.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

// Close stops accepting jobs, waits for queued jobs to finish and returns
// the first error reported by a job.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)

		p.closeMu.Lock()
		p.closed = true
		close(p.jobs)
		p.closeMu.Unlock()
	})
	p.wg.Wait()
	p.cancel()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}
