// Package parallel provides the worker pool used to partition field updates
// across CPU cores.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of goroutines executing submitted tasks.
//
// A single insertion into a field fans out as one task per chunk; ForN blocks
// until every task has finished, which is the barrier between the update
// phase and the reduction phase of a query.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	tasks   chan task
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

type task struct {
	fn func(i int)
	i  int
	wg *sync.WaitGroup
}

// New creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan task, workers*4),
		done:    make(chan struct{}),
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			// Drain queued tasks so no ForN caller is left waiting.
			for {
				select {
				case t := <-p.tasks:
					t.fn(t.i)
					t.wg.Done()
				default:
					return
				}
			}
		case t := <-p.tasks:
			t.fn(t.i)
			t.wg.Done()
		}
	}
}

// ForN runs fn(i) for every i in [0, n) across the pool's workers and waits
// for all of them to complete. Calls with n below the parallel threshold run
// inline; the fan-out cost is not worth it for a handful of chunks.
func (p *Pool) ForN(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if n <= 2 || p == nil || !p.running.Load() {
		for i := range n {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		select {
		case p.tasks <- task{fn: fn, i: i, wg: &wg}:
		case <-p.done:
			// Pool closed mid-submit; run the remainder inline.
			fn(i)
			wg.Done()
		}
	}
	wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int { return p.workers }

// Close stops the workers. Tasks submitted after Close run inline in the
// caller. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
