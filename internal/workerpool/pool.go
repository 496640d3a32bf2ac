// Package workerpool is the shared worker pool of spec.md §5: a fixed
// number of goroutines draining a bounded job queue, used to move turn
// processing (C6) off the webhook request path instead of blocking the
// provider's callback on recognition/reasoning/synthesis latency.
// Grounded on the teacher's own goroutine-per-task dispatch observed at
// its call sites (no single teacher file owns a pool abstraction, so this
// is built from the ambient "bounded channel + worker goroutines" Go
// idiom the rest of the corpus assumes).
package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
)

// ErrSaturated is returned by Submit when the job queue is full, per
// spec.md §5's backpressure rule: reject rather than queue unboundedly.
var ErrSaturated = errors.New("worker pool saturated")

// Pool runs jobs on a fixed set of worker goroutines fed by a bounded
// channel.
type Pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	logger commons.Logger
}

// New starts a Pool with the given worker count and job queue depth.
func New(workers, queueDepth int, logger commons.Logger) *Pool {
	p := &Pool{
		jobs:   make(chan func(), queueDepth),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Errorf("worker pool job panicked: %v", r)
				}
			}()
			job()
		}()
	}
}

// Submit enqueues job for asynchronous execution. It returns ErrSaturated
// immediately rather than blocking when the queue is full.
func (p *Pool) Submit(job func()) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrSaturated
	}
}

// Saturated reports whether the job queue is currently full — used by
// the Call Handler to reject new placements under load instead of
// accepting work the pool can't drain (spec.md §5 backpressure rule).
func (p *Pool) Saturated() bool {
	return len(p.jobs) == cap(p.jobs)
}

// Shutdown stops accepting new jobs and waits for in-flight and queued
// jobs to drain, or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	close(p.jobs)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
