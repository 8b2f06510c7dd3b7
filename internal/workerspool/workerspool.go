// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool limits the number of goroutines used by kernels that split their work
// in chunks.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers, shared by all kernels of a backend.
//
// Its parallelism is a soft limit on the number of extra goroutines running chunks at the same
// time: 0 disables parallelism, and a negative value means one chunk per CPU with no limit on
// concurrent kernels.
type Pool struct {
	parallelism int

	mu      sync.Mutex
	running int
}

// New returns a Pool with parallelism runtime.NumCPU().
func New() *Pool {
	return &Pool{parallelism: runtime.NumCPU()}
}

// MaxParallelism returns the configured parallelism.
func (w *Pool) MaxParallelism() int {
	return w.parallelism
}

// SetMaxParallelism configures the parallelism. It must be called before any kernel runs.
func (w *Pool) SetMaxParallelism(parallelism int) {
	w.parallelism = parallelism
}

// numChunks returns in how many chunks to split n elements, with at least minChunk per chunk.
func (w *Pool) numChunks(n, minChunk int) int {
	if w.parallelism == 0 {
		return 1
	}
	limit := w.parallelism
	if limit < 0 {
		limit = runtime.NumCPU()
	}
	return max(1, min(n/minChunk, limit))
}

// tryStart runs task in a new goroutine if a worker is free, and reports whether it did.
func (w *Pool) tryStart(task func()) bool {
	if w.parallelism < 0 {
		go task()
		return true
	}
	w.mu.Lock()
	if w.running >= w.parallelism {
		w.mu.Unlock()
		return false
	}
	w.running++
	w.mu.Unlock()
	go func() {
		defer func() {
			w.mu.Lock()
			w.running--
			w.mu.Unlock()
		}()
		task()
	}()
	return true
}

// ParallelFor splits the range [0, n) in chunks of at least minChunk elements and calls fn(start, end)
// for each chunk. Chunks for which no worker is free run in the calling goroutine. It returns when
// all chunks are done, and re-raises in the calling goroutine the first panic of any chunk.
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	minChunk = max(minChunk, 1)
	numChunks := w.numChunks(n, minChunk)
	if numChunks < 2 {
		fn(0, n)
		return
	}
	chunkSize := (n + numChunks - 1) / numChunks
	var (
		wg         sync.WaitGroup
		panicOnce  sync.Once
		panicValue any
	)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		chunk := func() {
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicValue = r })
				}
				wg.Done()
			}()
			fn(start, end)
		}
		if !w.tryStart(chunk) {
			chunk()
		}
	}
	wg.Wait()
	if panicValue != nil {
		panic(panicValue)
	}
}
