// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ParallelFor(t *testing.T) {
	for _, parallelism := range []int{0, 1, 4, -1} {
		pool := New()
		pool.SetMaxParallelism(parallelism)

		const n = 1000
		var visited [n]atomic.Int32
		var numCalls atomic.Int32
		pool.ParallelFor(n, 10, func(start, end int) {
			numCalls.Add(1)
			for ii := start; ii < end; ii++ {
				visited[ii].Add(1)
			}
		})
		for ii := range visited {
			require.Equalf(t, int32(1), visited[ii].Load(), "parallelism=%d, index %d", parallelism, ii)
		}
		if parallelism == 0 || parallelism == 1 {
			assert.Equal(t, int32(1), numCalls.Load())
		}
	}
}

func TestPool_ParallelForSmall(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(8)
	var calls [][2]int
	pool.ParallelFor(5, 10, func(start, end int) {
		calls = append(calls, [2]int{start, end})
	})
	assert.Equal(t, [][2]int{{0, 5}}, calls)
}

func TestPool_BusyWorkers(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, pool.tryStart(func() {
		<-release
		wg.Done()
	}))
	assert.False(t, pool.tryStart(func() {}), "pool should be full")

	// With no free worker, ParallelFor runs every chunk inline.
	pool.SetMaxParallelism(4)
	var chunks int
	pool.mu.Lock()
	pool.running = 4
	pool.mu.Unlock()
	pool.ParallelFor(100, 10, func(start, end int) { chunks++ })
	assert.Equal(t, 4, chunks)
	pool.mu.Lock()
	pool.running = 1
	pool.mu.Unlock()

	close(release)
	wg.Wait()

	pool.SetMaxParallelism(0)
	assert.Equal(t, 1, pool.numChunks(100, 10))
	pool.SetMaxParallelism(-1)
	assert.Equal(t, min(10, runtime.NumCPU()), pool.numChunks(100, 10))
}

func TestPool_ParallelForPanic(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(4)
	require.PanicsWithValue(t, "chunk failed", func() {
		pool.ParallelFor(100, 10, func(start, end int) {
			if start == 0 {
				panic("chunk failed")
			}
		})
	})
}
