// Package pool provides the fixed-size worker pool shared by the parallel
// SVD engine and the parallel strategies.
//
// Work that synchronizes on a Barrier must be submitted as a gang: the pool
// reserves every worker the gang needs before any member is queued, so all
// members are guaranteed to run at the same time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolTooSmall is raised when a gang asks for more workers than the pool has.
	ErrPoolTooSmall = errors.New("pool: gang larger than pool")

	// ErrClosed is raised when work is submitted to a closed pool.
	ErrClosed = errors.New("pool: closed")
)

// Pool runs submitted functions on a fixed set of goroutines.
type Pool struct {
	size   int
	tasks  chan func()
	tokens *semaphore.Weighted
	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once
}

// New starts a pool with size workers. A pool of size zero accepts only
// empty gangs.
func New(size int) *Pool {
	if size < 0 {
		size = 0
	}
	p := &Pool{
		size:   size,
		tasks:  make(chan func(), size),
		tokens: semaphore.NewWeighted(int64(size)),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	log.Debug().Int("workers", size).Msg("Started worker pool")
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit queues fn on one worker and returns a future for its completion.
func (p *Pool) Submit(fn func()) *Future {
	f := newFuture()
	p.SubmitGang(1, func(int) { fn() }).chain(f)
	return f
}

// SubmitGang runs fn(0), ..., fn(n-1) on n distinct workers that are all
// reserved before any of them starts. It blocks until the reservation
// succeeds.
func (p *Pool) SubmitGang(n int, fn func(member int)) *Batch {
	b := &Batch{}
	if n <= 0 {
		return b
	}
	if p.closed.Load() {
		panic(ErrClosed)
	}
	if n > p.size {
		panic(fmt.Errorf("%w: need %d, have %d", ErrPoolTooSmall, n, p.size))
	}
	if err := p.tokens.Acquire(context.Background(), int64(n)); err != nil {
		panic(fmt.Errorf("pool: reserve %d workers: %w", n, err))
	}

	b.wg.Add(n)
	for i := 0; i < n; i++ {
		member := i
		p.tasks <- func() {
			defer b.wg.Done()
			defer p.tokens.Release(1)
			fn(member)
		}
	}
	return b
}

// Close stops accepting work and waits for the workers to drain the queue.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.tasks)
		p.wg.Wait()
		log.Debug().Int("workers", p.size).Msg("Stopped worker pool")
	})
}

// Batch tracks the members of one gang.
type Batch struct {
	wg sync.WaitGroup
}

// Wait blocks until every member has returned.
func (b *Batch) Wait() { b.wg.Wait() }

func (b *Batch) chain(f *Future) {
	go func() {
		b.Wait()
		close(f.done)
	}()
}

// Future is the completion handle of a single submitted task.
type Future struct {
	done chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Wait blocks until the task has returned.
func (f *Future) Wait() { <-f.done }

// Done returns a channel closed when the task has returned.
func (f *Future) Done() <-chan struct{} { return f.done }
