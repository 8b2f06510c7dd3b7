// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from operations and validates its inputs.
//
// The tensors package uses it to know the shape of a lazy tensor before it is realized, and backends
// use it to validate the buffers they are given.
//
// It defines a BinaryOp function for shape inference for the binary functions and UnaryOp for the
// elementwise unary ones. For the remainder ops, it defines one function per OpType.
package shapeinference

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/gomlx/tracejit/pkg/support/sets"
	"github.com/pkg/errors"
)

var (
	// StandardBinaryOperations include all operations that have two operands usually named lhs (left-hand-side) and
	// rhs (right-hand-side).
	StandardBinaryOperations = sets.MakeWith(
		backends.OpTypeAdd,
		backends.OpTypeSub,
		backends.OpTypeMul,
		backends.OpTypeDiv,
		backends.OpTypeMax,
		backends.OpTypeMin,
	)

	// StandardUnaryOperations include all operations that have a single operand as input, and the return shape is the
	// same as the input (so no reductions).
	StandardUnaryOperations = sets.MakeWith(
		backends.OpTypeIdentity,
		backends.OpTypeNeg,
		backends.OpTypeAbs,
		backends.OpTypeExp,
		backends.OpTypeLog,
		backends.OpTypeSqrt,
	)

	// FloatOperations operates only on floats.
	FloatOperations = sets.MakeWith(
		backends.OpTypeExp,
		backends.OpTypeLog,
		backends.OpTypeSqrt,
	)
)

// isNumber returns whether the dtype is one of the numeric types (not bool, not complex).
func isNumber(dtype dtypes.DType) bool {
	return dtype.IsInt() || dtype.IsFloat()
}

// BinaryOp returns the expected output shape for ops in the StandardBinaryOperations set.
//
// Operands must have the same DType, and either the same dimensions or one of them must be a scalar,
// in which case it is broadcast.
func BinaryOp(opType backends.OpType, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if !StandardBinaryOperations.Has(opType) {
		err = errors.Errorf("operation %s is not in the StandardBinaryOperations set, cannot process it with BinaryOp", opType)
		return
	}
	if !lhsShape.Ok() || !rhsShape.Ok() {
		err = errors.Errorf("invalid shape for %s or %s for BinaryOp %s", lhsShape, rhsShape, opType)
		return
	}
	if lhsShape.DType != rhsShape.DType {
		err = errors.Errorf("data types (DType) for BinaryOp %s must match, got %s and %s", opType, lhsShape, rhsShape)
		return
	}
	if !isNumber(lhsShape.DType) {
		err = errors.Errorf("numeric BinaryOp %s must have a number (Int32, Float32, ...) data type as input, got %s", opType, lhsShape)
		return
	}
	if lhsShape.IsScalar() {
		return rhsShape.Clone(), nil
	}
	if rhsShape.IsScalar() {
		return lhsShape.Clone(), nil
	}
	if !lhsShape.EqualDimensions(rhsShape) {
		err = errors.Errorf("dimensions for BinaryOp %s must match (or one operand must be a scalar), got shapes %s and %s",
			opType, lhsShape, rhsShape)
		return
	}
	return lhsShape.Clone(), nil
}

// UnaryOp checks the validity of the data type for StandardUnaryOperations and returns either an error or
// the output shape, which is the same as the operand.
func UnaryOp(opType backends.OpType, operand shapes.Shape) (output shapes.Shape, err error) {
	if !StandardUnaryOperations.Has(opType) {
		err = errors.Errorf("operation %s is not in the StandardUnaryOperations set, cannot process it with UnaryOp", opType)
		return
	}
	if !operand.Ok() {
		err = errors.Errorf("invalid shape %s for UnaryOp %s", operand, opType)
		return
	}
	if opType != backends.OpTypeIdentity && !isNumber(operand.DType) {
		err = errors.Errorf("numeric UnaryOp %s must have a number (Int32, Float32, ...) data type as input, got %s", opType, operand)
		return
	}
	if opType == backends.OpTypeNeg && operand.DType.IsUnsigned() {
		err = errors.Errorf("UnaryOp %s must have a signed data type as input, got %s", opType, operand)
		return
	}
	if FloatOperations.Has(opType) && !operand.DType.IsFloat() {
		err = errors.Errorf("float UnaryOp %s must have a float (Float32, Float64, ...) data type as input, got %s", opType, operand)
		return
	}
	return operand.Clone(), nil
}

// ReduceSumOp returns the shape of the sum of all elements of operand: a scalar of the same DType.
func ReduceSumOp(operand shapes.Shape) (output shapes.Shape, err error) {
	if !operand.Ok() || !isNumber(operand.DType) {
		err = errors.Errorf("ReduceSum requires a numeric operand, got %s", operand)
		return
	}
	return shapes.Make(operand.DType), nil
}

// ConvertDTypeOp returns the shape of operand converted to dtype.
func ConvertDTypeOp(operand shapes.Shape, dtype dtypes.DType) (output shapes.Shape, err error) {
	if !operand.Ok() || !isNumber(operand.DType) || !isNumber(dtype) {
		err = errors.Errorf("ConvertDType only converts between numeric types, got %s to %s", operand, dtype)
		return
	}
	output = operand.Clone()
	output.DType = dtype
	return
}

// SliceOp calculates the output shape for a Slice operation.
// It checks that starts, limits, and strides have the correct length (matching operand rank),
// and that the slice parameters are valid for the operand's dimensions.
// Strides must be positive.
func SliceOp(operand shapes.Shape, params backends.SliceParams) (output shapes.Shape, err error) {
	rank := operand.Rank()
	opName := "SliceOp"
	starts, limits, strides := params.Starts, params.Limits, params.Strides
	if !operand.Ok() {
		return shapes.Invalid(), errors.Errorf("%s: invalid operand shape %s", opName, operand)
	}
	if len(starts) != rank {
		return shapes.Invalid(), errors.Errorf("%s: len(starts)=%d, but operand rank is %d", opName, len(starts), rank)
	}
	if len(limits) != rank {
		return shapes.Invalid(), errors.Errorf("%s: len(limits)=%d, but operand rank is %d", opName, len(limits), rank)
	}
	if len(strides) != rank {
		return shapes.Invalid(), errors.Errorf("%s: len(strides)=%d, but operand rank is %d", opName, len(strides), rank)
	}

	output = shapes.Shape{
		DType:      operand.DType,
		Dimensions: make([]int, rank),
	}
	for axis := 0; axis < rank; axis++ {
		start, limit, stride := starts[axis], limits[axis], strides[axis]
		dimSize := operand.Dimensions[axis]
		if stride <= 0 {
			return shapes.Invalid(), errors.Errorf("%s: stride must be positive, but got stride[%d]=%d for operand shape %s",
				opName, axis, stride, operand)
		}
		if start < 0 || start >= dimSize {
			return shapes.Invalid(), errors.Errorf("%s: start index %d is out of bounds for axis %d with size %d (operand shape %s)",
				opName, start, axis, dimSize, operand)
		}
		// Limit can be equal to dimSize.
		if limit <= start || limit > dimSize {
			return shapes.Invalid(), errors.Errorf("%s: limit index %d is out of bounds for axis %d (start=%d, size=%d, operand shape %s)",
				opName, limit, axis, start, dimSize, operand)
		}
		// The first one is always taken, so we use the ceiling of the division.
		output.Dimensions[axis] = (limit - start + (stride - 1)) / stride
	}
	return output, nil
}
