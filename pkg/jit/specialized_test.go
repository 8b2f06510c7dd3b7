// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecialized_AlternatingShapes(t *testing.T) {
	engine := newTestEngine()
	rng := newTestRNG()
	s := NewSpecialized(engine, addFn).SetName("add")
	sizes := []int{10, 5, 10, 5, 10, 5, 10, 3}
	for ii, size := range sizes {
		a := tensors.Randn(engine, rng, dtypes.Float32, size, size)
		b := tensors.Randn(engine, rng, dtypes.Float32, size, size)
		results, err := s.Call(a, b)
		require.NoError(t, err, "call #%d with size %d", ii, size)
		assert.Equal(t, hostAdd(a, b), tensors.MustCopyFlatData[float32](results[0].(*tensors.Tensor)),
			"call #%d with size %d", ii, size)
	}
	require.Equal(t, 3, s.Len())
	fps := s.Fingerprints()
	assert.Equal(t, []int{10, 10}, fps[0].Tensors[0].Shape.Dimensions)
	assert.Equal(t, []int{5, 5}, fps[1].Tensors[0].Shape.Dimensions)
	assert.Equal(t, []int{3, 3}, fps[2].Tensors[0].Shape.Dimensions)

	c10 := s.Controller(fps[0])
	require.NotNil(t, c10)
	assert.Equal(t, "add#0", c10.Name())
	assert.Equal(t, StateCaptured, c10.State())
	assert.Equal(t, 4, c10.NumCalls())
	assert.Equal(t, 2, c10.NumReplays())
	assert.Equal(t, StateCaptured, s.Controller(fps[1]).State())
	assert.Equal(t, StateCollecting, s.Controller(fps[2]).State())
	assert.Equal(t, 3, s.NumReplays())

	// Sub-controllers are renamed with the Specialized controller.
	s.SetName("sum")
	assert.Equal(t, "sum#1", s.Controller(fps[1]).Name())
	assert.Equal(t, "sum#1", s.Controller(fps[1]).Graph().Name())
}

func TestSpecialized_Errors(t *testing.T) {
	engine := newTestEngine()
	rng := newTestRNG()
	s := NewSpecialized(engine, addFn).SetMaxCache(1)

	_, err := s.Call("no", "tensors")
	assert.True(t, errors.Is(err, ErrNoTensorArgs), "got error %v", err)
	assert.Equal(t, 0, s.Len())

	_, err = s.Call(tensors.Randn(engine, rng, dtypes.Float32, 2), tensors.Randn(engine, rng, dtypes.Float32, 2))
	require.NoError(t, err)
	_, err = s.Call(tensors.Randn(engine, rng, dtypes.Float32, 3), tensors.Randn(engine, rng, dtypes.Float32, 3))
	assert.True(t, errors.Is(err, ErrCacheFull), "got error %v", err)
	assert.Equal(t, 1, s.Len())

	// Aliasing is still reported by the sub-controller.
	a := tensors.Randn(engine, rng, dtypes.Float32, 2)
	_, err = s.Call(a, a)
	assert.True(t, errors.Is(err, ErrAliasing), "got error %v", err)

	s.Finalize()
	assert.Equal(t, 0, s.Len())
	_, err = s.Call(a, tensors.Randn(engine, rng, dtypes.Float32, 2))
	require.ErrorContains(t, err, "finalized")
}

func TestSpecialized_LargeCacheWarning(t *testing.T) {
	engine := newTestEngine()
	rng := newTestRNG()
	previous := LargeCacheWarning
	LargeCacheWarning = 2
	defer func() { LargeCacheWarning = previous }()

	s := NewSpecialized(engine, addFn)
	for size := 1; size <= 4; size++ {
		_, err := s.Call(tensors.Randn(engine, rng, dtypes.Float32, size), tensors.Randn(engine, rng, dtypes.Float32, size))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, s.Len())
	assert.True(t, s.warned)
}
