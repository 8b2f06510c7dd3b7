// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/backends/shapeinference"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Compile-time check.
var _ backends.KernelInterface = (*Backend)(nil)

// kernelExecutor executes one op: it reads inputs and writes into the preallocated outputs.
//
// Shapes and dtypes have already been validated by Backend.Execute, so executors only panic
// on internal errors.
type kernelExecutor func(backend *Backend, op backends.OpType, params any, outputs, inputs []*Buffer)

// kernelExecutors registers the executors for each op, during initialization of the package.
var kernelExecutors [backends.OpTypeLast]kernelExecutor

// numericPOD are the Go (plain-old-data) types kernels are written for.
// Float16 is handled by converting to float32.
type numericPOD interface {
	constraints.Integer | constraints.Float
}

// minParallelChunk is the minimum number of elements handled by one goroutine in elementwise kernels.
const minParallelChunk = 16 * 1024

// Execute implements backends.KernelInterface.
//
// It validates the buffers given against the shape inferred for op, and then runs the
// registered executor. Panics raised by the executor are returned as errors.
func (b *Backend) Execute(op backends.OpType, params any, outputs []backends.Buffer, inputs []backends.Buffer) error {
	if b.isFinalized {
		return errors.Errorf("backend %q has already been finalized", BackendName)
	}
	if op <= backends.OpTypeInvalid || op >= backends.OpTypeLast || kernelExecutors[op] == nil {
		return errors.Errorf("backend %q: operation %s not implemented", BackendName, op)
	}
	ins := make([]*Buffer, len(inputs))
	for ii, input := range inputs {
		var err error
		ins[ii], err = toBuffer(input)
		if err != nil {
			return errors.WithMessagef(err, "%s: input #%d", op, ii)
		}
	}
	outs := make([]*Buffer, len(outputs))
	for ii, output := range outputs {
		var err error
		outs[ii], err = toBuffer(output)
		if err != nil {
			return errors.WithMessagef(err, "%s: output #%d", op, ii)
		}
	}
	if len(outs) != 1 {
		return errors.Errorf("%s: expected exactly one output buffer, got %d", op, len(outs))
	}
	expected, err := inferOutputShape(op, params, outs[0].shape, ins)
	if err != nil {
		return err
	}
	if !expected.Equal(outs[0].shape) {
		return errors.Errorf("%s: output buffer has shape %s, but the operation produces %s", op, outs[0].shape, expected)
	}
	dtypesUsed := []dtypes.DType{outs[0].shape.DType}
	for _, in := range ins {
		dtypesUsed = append(dtypesUsed, in.shape.DType)
	}
	if err := Capabilities.Check(op, dtypesUsed...); err != nil {
		return errors.WithMessagef(err, "backend %q", BackendName)
	}
	err = exceptions.TryCatch[error](func() { kernelExecutors[op](b, op, params, outs, ins) })
	if err != nil {
		return errors.WithMessagef(err, "backend %q executing %s", BackendName, op)
	}
	return nil
}

// inferOutputShape validates the number of inputs and their shapes, and returns the expected output shape.
func inferOutputShape(op backends.OpType, params any, output shapes.Shape, inputs []*Buffer) (shapes.Shape, error) {
	numInputs := 1
	if shapeinference.StandardBinaryOperations.Has(op) {
		numInputs = 2
	}
	if len(inputs) != numInputs {
		return shapes.Invalid(), errors.Errorf("%s: expected %d inputs, got %d", op, numInputs, len(inputs))
	}
	switch {
	case numInputs == 2:
		return shapeinference.BinaryOp(op, inputs[0].shape, inputs[1].shape)
	case shapeinference.StandardUnaryOperations.Has(op):
		return shapeinference.UnaryOp(op, inputs[0].shape)
	case op == backends.OpTypeReduceSum:
		return shapeinference.ReduceSumOp(inputs[0].shape)
	case op == backends.OpTypeConvertDType:
		return shapeinference.ConvertDTypeOp(inputs[0].shape, output.DType)
	case op == backends.OpTypeSlice:
		sliceParams, ok := params.(backends.SliceParams)
		if !ok {
			return shapes.Invalid(), errors.Errorf("%s: expected backends.SliceParams, got %T", op, params)
		}
		return shapeinference.SliceOp(inputs[0].shape, sliceParams)
	}
	return shapes.Invalid(), errors.Errorf("%s: no shape inference available", op)
}
