// Package pool runs indexed fan-out work, such as a batch of document
// ingestions, on a bounded ants pool.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// ErrInvalidSize is returned for pools with fewer than one worker.
var ErrInvalidSize = errors.New("pool: size must be positive")

// idleExpiry is how long an idle worker goroutine is kept.
const idleExpiry = 30 * time.Second

// Pool bounds the number of goroutines running tasks at once. Submission
// blocks while the pool is full.
type Pool struct {
	name    string
	workers *ants.Pool

	completed atomic.Int64
	panics    atomic.Int64
	inline    atomic.Int64
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Completed int64
	Panics    int64
	// Inline counts tasks run on the caller's goroutine because the pool
	// refused them.
	Inline int64
}

func New(name string, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s has %d", ErrInvalidSize, name, size)
	}
	workers, err := ants.NewPool(size, ants.WithExpiryDuration(idleExpiry))
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	logger.Debugw("Worker pool created", "pool", name, "size", size)
	return &Pool{name: name, workers: workers}, nil
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Size() int { return p.workers.Cap() }

// ForEach calls fn for every index in [0, n) and waits for all of them.
// Each index runs exactly once: if the pool refuses a task, for example
// after Release, it runs on the caller's goroutine instead. A panic in fn is
// logged and counted without affecting the other indices.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		task := func() {
			defer wg.Done()
			defer p.recoverTask(i)
			fn(ctx, i)
			p.completed.Add(1)
		}
		if err := p.workers.Submit(task); err != nil {
			p.inline.Add(1)
			task()
		}
	}
	wg.Wait()
}

func (p *Pool) recoverTask(i int) {
	if r := recover(); r != nil {
		p.panics.Add(1)
		logger.Errorw("Worker panic recovered", "pool", p.name, "index", i, "panic", r)
	}
}

// Release stops the pool. It is safe to call more than once.
func (p *Pool) Release() {
	p.workers.Release()
}

func (p *Pool) Stats() Stats {
	return Stats{
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
		Inline:    p.inline.Load(),
	}
}
