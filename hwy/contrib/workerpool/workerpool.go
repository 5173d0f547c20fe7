// Copyright 2025 The go-highway Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool provides a persistent, reusable worker pool for parallel
// computation. A Pool is created once and reused across many operations,
// eliminating per-call goroutine spawn overhead.
//
// Work items carry the index of the worker that runs them, so callers can
// keep per-worker state (scratch arenas, accumulators) without locking:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	scratch := make([]hwy.Buffer, pool.NumWorkers())
//	pool.ParallelFor(batch, func(worker, start, end int) {
//	    forwardRange(start, end, scratch[worker].Resize(size))
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool that can be reused across many parallel
// operations. Workers are spawned once at creation and reused.
type Pool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

// workItem represents one worker's share of a parallel operation.
type workItem struct {
	fn      func(worker int)
	worker  int
	barrier *sync.WaitGroup
}

// New creates a new worker pool with the specified number of workers.
// Workers are spawned immediately and persist until Close is called.
// If numWorkers <= 0, uses GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		// Buffer enough for all workers to have pending work
		workC: make(chan workItem, numWorkers*2),
	}

	// Spawn persistent workers
	for range numWorkers {
		go p.worker()
	}

	return p
}

// worker is the main loop for each persistent worker goroutine.
func (p *Pool) worker() {
	for item := range p.workC {
		item.fn(item.worker)
		item.barrier.Done()
	}
}

// NumWorkers returns the number of workers in the pool. Worker indices
// passed to callbacks are in [0, NumWorkers()).
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close shuts down the worker pool. All pending work will complete.
// Calling Close multiple times is safe.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// ParallelFor executes fn over [0, n) split into one contiguous range per
// worker. Blocks until all work completes.
//
// fn receives the worker index and the [start, end) range it owns.
func (p *Pool) ParallelFor(n int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}

	workers := p.workersFor(n)
	if workers == 1 {
		fn(0, 0, n)
		return
	}

	// Calculate chunk size (ensure all items are covered)
	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := range workers {
		start := i * chunkSize
		end := min(start+chunkSize, n)
		if start >= n {
			// No work for this worker
			wg.Done()
			continue
		}

		p.workC <- workItem{
			fn: func(worker int) {
				fn(worker, start, end)
			},
			worker:  i,
			barrier: &wg,
		}
	}

	wg.Wait()
}

// workersFor returns how many workers to use for n items, 1 meaning run
// inline on the caller's goroutine (also used once the pool is closed).
func (p *Pool) workersFor(n int) int {
	if p == nil || p.closed.Load() {
		return 1
	}
	return min(p.numWorkers, n)
}
