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

func TestWrap(t *testing.T) {
	engine := newTestEngine()
	rng := newTestRNG()
	add, c := WrapController(engine, func(a, b *tensors.Tensor) *tensors.Tensor { return tensors.Add(a, b) })
	for ii := range 5 {
		a := tensors.Randn(engine, rng, dtypes.Float32, 4, 4)
		b := tensors.Randn(engine, rng, dtypes.Float32, 4, 4)
		assert.Equal(t, hostAdd(a, b), tensors.MustCopyFlatData[float32](add(a, b)), "call #%d", ii)
	}
	assert.Equal(t, StateCaptured, c.State())
	assert.Equal(t, 3, c.NumReplays())

	// Without an error result, errors are raised as panics.
	require.Panics(t, func() {
		add(tensors.Randn(engine, rng, dtypes.Float32, 2), tensors.Randn(engine, rng, dtypes.Float32, 2))
	})
}

func TestWrap_ErrorResult(t *testing.T) {
	engine := newTestEngine()
	scale := Wrap(engine, func(x *tensors.Tensor, factor float32) (*tensors.Tensor, string, error) {
		if factor == 0 {
			return nil, "", errors.New("zero factor")
		}
		return tensors.Mul(x, tensors.FromScalar(x.Engine(), factor)), "scaled", nil
	})
	x := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2)
	_, _, err := scale(x, 0)
	require.ErrorContains(t, err, "zero factor")

	for range 3 {
		y, label, err := scale(x, 2)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 4}, tensors.MustCopyFlatData[float32](y))
		assert.Equal(t, "scaled", label)
	}

	// The factor is not a tensor: once captured its value is frozen.
	y, _, err := scale(x, 10)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4}, tensors.MustCopyFlatData[float32](y))

	_, _, err = scale(tensors.FromFlatDataAndDimensions(engine, []float32{1, 2, 3}, 3), 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch), "got error %v", err)
}

func TestWrap_Variadic(t *testing.T) {
	engine := newTestEngine()
	sum, s := WrapSpecialized(engine, func(xs ...*tensors.Tensor) []*tensors.Tensor {
		total := xs[0]
		for _, x := range xs[1:] {
			total = tensors.Add(total, x)
		}
		return []*tensors.Tensor{total, tensors.ReduceAllSum(total)}
	})
	for _, n := range []int{2, 3, 2, 3, 2, 3} {
		xs := make([]*tensors.Tensor, n)
		for ii := range xs {
			xs[ii] = tensors.FromFlatDataAndDimensions(engine, []float64{float64(ii), 1}, 2)
		}
		results := sum(xs...)
		require.Len(t, results, 2)
		expected := float64(n * (n - 1) / 2)
		assert.Equal(t, []float64{expected, float64(n)}, tensors.MustCopyFlatData[float64](results[0]))
		assert.Equal(t, expected+float64(n), tensors.ToScalar[float64](results[1]))
	}
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.NumReplays())

	// Each variadic tensor is tracked: passing the same one twice is aliasing.
	x := tensors.FromFlatDataAndDimensions(engine, []float64{1, 1}, 2)
	require.Panics(t, func() { sum(x, x) })
}

func TestWrap_NotAFunction(t *testing.T) {
	engine := newTestEngine()
	require.Panics(t, func() { Wrap(engine, 3) })
	var nilFn func(*tensors.Tensor) *tensors.Tensor
	require.Panics(t, func() { Wrap(engine, nilFn) })
}
