// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"runtime"
	"testing"
	"time"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testModel struct {
	weights *tensors.Tensor
}

func scaleMethod(m *testModel, args ...any) ([]any, error) {
	return []any{tensors.Mul(args[0].(*tensors.Tensor), m.weights)}, nil
}

// sliceMethod adds x to the top-left corner of the receiver's weights with the same shape as x.
func sliceMethod(m *testModel, args ...any) ([]any, error) {
	x := args[0].(*tensors.Tensor)
	dims := x.Shape().Dimensions
	corner := tensors.Slice(m.weights, make([]int, len(dims)), dims)
	return []any{tensors.Add(x, corner)}, nil
}

func TestMethod_IndependentReceivers(t *testing.T) {
	engine := newTestEngine()
	method := NewMethod(engine, scaleMethod).SetName("scale")
	m1 := &testModel{weights: tensors.FromScalar(engine, float32(2))}
	m2 := &testModel{weights: tensors.FromScalar(engine, float32(-3))}

	for ii := range 5 {
		x := tensors.FromFlatDataAndDimensions(engine, []float32{1, float32(ii)}, 2)
		results, err := method.Call(m1, x)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 2 * float32(ii)}, tensors.MustCopyFlatData[float32](results[0].(*tensors.Tensor)))

		x = tensors.FromFlatDataAndDimensions(engine, []float32{1, float32(ii)}, 2)
		results, err = method.Call(m2, x)
		require.NoError(t, err)
		assert.Equal(t, []float32{-3, -3 * float32(ii)}, tensors.MustCopyFlatData[float32](results[0].(*tensors.Tensor)))
	}
	assert.Equal(t, 2, method.Len())

	c1, ok := method.Bind(m1).(*Controller)
	require.True(t, ok)
	c2 := method.Bind(m2).(*Controller)
	assert.Same(t, c1, method.Bind(m1))
	assert.NotSame(t, c1, c2)
	assert.Equal(t, "scale@0", c1.Name())
	assert.Equal(t, "scale@1", c2.Name())
	assert.Equal(t, 3, c1.NumReplays())
	assert.Equal(t, 3, c2.NumReplays())

	// Only the argument is tracked: m1's weights are frozen into its graph.
	assert.Equal(t, 1, c1.Graph().RoleCount(RoleConstant))

	// A new receiver starts its own warmup, even after the others were captured.
	m3 := &testModel{weights: tensors.FromScalar(engine, float32(10))}
	results, err := method.Call(m3, tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20}, tensors.MustCopyFlatData[float32](results[0].(*tensors.Tensor)))
	assert.Equal(t, StateCollecting, method.Bind(m3).(*Controller).State())

	require.Panics(t, func() { method.Bind(nil) })
}

func TestMethod_Specialized(t *testing.T) {
	engine := newTestEngine()
	rng := newTestRNG()
	method := NewSpecializedMethod(engine, sliceMethod)
	m1 := &testModel{weights: tensors.Randn(engine, rng, dtypes.Float32, 10, 10)}
	m2 := &testModel{weights: tensors.Randn(engine, rng, dtypes.Float32, 10, 10)}

	for _, size := range []int{10, 5, 10, 5, 10, 5} {
		for _, m := range []*testModel{m1, m2} {
			x := tensors.Randn(engine, rng, dtypes.Float32, size, size)
			results, err := method.Call(m, x)
			require.NoError(t, err)
			corner := tensors.Slice(m.weights, []int{0, 0}, []int{size, size})
			assert.Equal(t, hostAdd(x, corner), tensors.MustCopyFlatData[float32](results[0].(*tensors.Tensor)))
		}
	}
	s1, ok := method.Bind(m1).(*Specialized)
	require.True(t, ok)
	s2 := method.Bind(m2).(*Specialized)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 2, s1.Len())
	assert.Equal(t, 2, s2.Len())
	assert.Equal(t, 2, s1.NumReplays())
}

// bindTemporaryReceiver binds a receiver that is not referenced after it returns.
//
//go:noinline
func bindTemporaryReceiver(t *testing.T, engine *tensors.Engine, method *Method[testModel]) {
	m := &testModel{weights: tensors.FromScalar(engine, float32(1))}
	for range 3 {
		_, err := method.Call(m, tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2))
		require.NoError(t, err)
	}
}

func TestMethod_ReceiverCollected(t *testing.T) {
	engine := newTestEngine()
	method := NewMethod(engine, scaleMethod)
	bindTemporaryReceiver(t, engine, method)
	assert.Eventually(t, func() bool {
		runtime.GC()
		return method.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMethod_Errors(t *testing.T) {
	engine := newTestEngine()
	method := NewMethod(engine, func(m *testModel, args ...any) ([]any, error) {
		if m.weights == nil {
			return nil, errors.New("model has no weights")
		}
		return scaleMethod(m, args...)
	})
	_, err := method.Call(&testModel{}, tensors.FromScalar(engine, float32(1)))
	require.ErrorContains(t, err, "model has no weights")
}
