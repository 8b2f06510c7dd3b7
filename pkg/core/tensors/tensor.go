// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a lazy `Tensor`, a representation of a multidimensional array whose
// value is only computed when it is realized.
//
// Tensors are created either from host data (FromFlatDataAndDimensions, FromScalar, Full, Randn), which
// uploads the data to a device buffer without executing any kernel, or as the lazy result of an
// operation (Add, Mul, Exp, ReduceAllSum, Slice, ...), which only records the operation and infers
// its shape.
//
// Calling Tensor.Realize executes, through the Engine, one kernel per pending operation needed to
// compute the tensor. Each kernel execution is a Dispatch, and an Engine's DispatchObserver sees all
// of them in order: that is how package jit traces what a function does.
//
// Example:
//
//	engine := tensors.NewEngine(backends.New())
//	a := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2, 3}, 3)
//	b := tensors.Mul(a, tensors.FromScalar(engine, float32(2)))
//	fmt.Println(tensors.MustCopyFlatData[float32](b)) // Realizes b: [2 4 6]
//
// Programming errors (incompatible shapes, mixing engines) panic with a stack trace, see
// github.com/gomlx/exceptions. Errors from the backend are returned.
package tensors

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Tensor is a lazy multidimensional array: either realized, holding a device buffer, or pending,
// holding the operation and the input tensors needed to compute it.
//
// Once realized, a Tensor never changes its buffer, and it drops the references to its inputs.
type Tensor struct {
	engine *Engine
	shape  shapes.Shape

	// buffer is set once the tensor is realized.
	buffer backends.Buffer

	// Pending operation, only used while buffer is nil.
	op     backends.OpType
	params any
	inputs []*Tensor

	finalized bool
}

// newLazy creates a pending tensor for the given op.
func newLazy(engine *Engine, shape shapes.Shape, op backends.OpType, params any, inputs ...*Tensor) *Tensor {
	return &Tensor{engine: engine, shape: shape, op: op, params: params, inputs: inputs}
}

// FromBuffer creates a realized tensor that takes ownership of the given buffer.
func FromBuffer(engine *Engine, buffer backends.Buffer) (*Tensor, error) {
	shape, err := engine.Backend().BufferShape(buffer)
	if err != nil {
		return nil, errors.WithMessage(err, "tensors.FromBuffer")
	}
	return &Tensor{engine: engine, shape: shape, buffer: buffer}, nil
}

// Engine used by the tensor.
func (t *Tensor) Engine() *Engine { return t.engine }

// Shape of the tensor, known even before it is realized.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsRealized returns whether the tensor already holds a buffer with its value.
func (t *Tensor) IsRealized() bool { return t.buffer != nil }

// IsFinalized returns true if the tensor has already been finalized.
func (t *Tensor) IsFinalized() bool { return t.finalized }

// AssertValid panics if the tensor is nil or was finalized.
func (t *Tensor) AssertValid() {
	if t == nil {
		exceptions.Panicf("tensor is nil")
	}
	if t.finalized {
		exceptions.Panicf("tensor %s has been finalized", t.shape)
	}
}

// Realize computes the value of the tensor, dispatching one kernel per pending operation
// (including the ones of its inputs). It is a no-op if the tensor is already realized.
func (t *Tensor) Realize() error {
	t.AssertValid()
	if t.buffer != nil {
		return nil
	}
	inputBuffers := make([]backends.Buffer, len(t.inputs))
	for ii, input := range t.inputs {
		if input.engine != t.engine {
			return errors.Errorf("tensor %s: input #%d belongs to a different engine", t.shape, ii)
		}
		if err := input.Realize(); err != nil {
			return err
		}
		inputBuffers[ii] = input.buffer
	}
	buffer, err := t.engine.NewBuffer(t.shape)
	if err != nil {
		return err
	}
	err = t.engine.Dispatch(t.op, t.params, []backends.Buffer{buffer}, inputBuffers)
	if err != nil {
		_ = t.engine.Backend().BufferFinalize(buffer)
		return errors.WithMessagef(err, "realizing %s of shape %s", t.op, t.shape)
	}
	t.buffer = buffer
	t.inputs = nil
	t.params = nil
	return nil
}

// MustRealize is like Realize, but panics on error.
func (t *Tensor) MustRealize() *Tensor {
	if err := t.Realize(); err != nil {
		panic(err)
	}
	return t
}

// Buffer realizes the tensor, if needed, and returns its buffer.
//
// The tensor remains the owner of the buffer.
func (t *Tensor) Buffer() (backends.Buffer, error) {
	if err := t.Realize(); err != nil {
		return nil, err
	}
	return t.buffer, nil
}

// Finalize releases the tensor's buffer back to the backend. The tensor can no longer be used.
func (t *Tensor) Finalize() {
	if t == nil || t.finalized {
		return
	}
	if t.buffer != nil {
		_ = t.engine.Backend().BufferFinalize(t.buffer)
	}
	t.buffer = nil
	t.inputs = nil
	t.finalized = true
}

// String implements fmt.Stringer. Realized tensors print a summary of their values, pending
// ones only their shape and pending op: printing never dispatches kernels.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	if t.finalized {
		return fmt.Sprintf("%s<finalized>", t.shape)
	}
	if t.buffer == nil {
		return fmt.Sprintf("%s<pending %s>", t.shape, t.op)
	}
	return t.Summary(TensorStringDefaultPrecision)
}
