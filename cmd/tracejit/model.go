// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math/rand/v2"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/gomlx/tracejit/pkg/jit"
	"github.com/pkg/errors"
)

// model is a toy elementwise model: its weights are frozen into each captured graph.
type model struct {
	scale, bias *tensors.Tensor
}

func newModel(engine *tensors.Engine, rng *rand.Rand, dtype dtypes.DType, dims []int) *model {
	return &model{
		scale: tensors.Randn(engine, rng, dtype, dims...),
		bias:  tensors.Randn(engine, rng, dtype, dims...),
	}
}

// forward returns y=sqrt(|x*scale+bias|) and the sum of y. If x is smaller than the weights, it
// uses their top-left corner.
func forward(m *model, args ...any) ([]any, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("forward takes one argument, got %d", len(args))
	}
	x, ok := args[0].(*tensors.Tensor)
	if !ok {
		return nil, errors.Errorf("forward expects a *tensors.Tensor, got %T", args[0])
	}
	scale, bias := m.scale, m.bias
	if !x.Shape().EqualDimensions(scale.Shape()) {
		dims := x.Shape().Dimensions
		starts := make([]int, len(dims))
		scale = tensors.Slice(scale, starts, dims)
		bias = tensors.Slice(bias, starts, dims)
	}
	y := tensors.Sqrt(tensors.Abs(tensors.Add(tensors.Mul(x, scale), bias)))
	return []any{y, tensors.ReduceAllSum(y)}, nil
}

// newForwardMethod returns the JIT-ed forward method: one controller per model.
func newForwardMethod(engine *tensors.Engine, cfg Config) *jit.Method[model] {
	if cfg.Specialized {
		return jit.NewSpecializedMethod(engine, forward).SetName("forward")
	}
	return jit.NewMethod(engine, forward).SetName("forward")
}

// bindForward returns the caller of forward for m, with the configured max cache size.
func bindForward(method *jit.Method[model], m *model, cfg Config) jit.Caller {
	caller := method.Bind(m)
	if s, ok := caller.(*jit.Specialized); ok {
		s.SetMaxCache(cfg.MaxCache)
	}
	return caller
}

// inputDims returns the dimensions of the input of the call-th call: when specialized it alternates
// between the full dims and half of them.
func inputDims(cfg Config, call int) []int {
	if !cfg.Specialized || call%2 == 0 {
		return cfg.Dims
	}
	half := make([]int, len(cfg.Dims))
	for ii, dim := range cfg.Dims {
		half[ii] = dim / 2
	}
	return half
}
