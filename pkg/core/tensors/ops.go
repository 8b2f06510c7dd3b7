// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/backends/shapeinference"
)

// All operations here are lazy: they validate the operands, infer the output shape and return a
// pending tensor. Nothing is dispatched until the result (or something depending on it) is realized.

func binaryOp(op backends.OpType, lhs, rhs *Tensor) *Tensor {
	lhs.AssertValid()
	rhs.AssertValid()
	if lhs.engine != rhs.engine {
		exceptions.Panicf("%s: operands belong to different engines", op)
	}
	shape, err := shapeinference.BinaryOp(op, lhs.shape, rhs.shape)
	if err != nil {
		panic(err)
	}
	return newLazy(lhs.engine, shape, op, nil, lhs, rhs)
}

func unaryOp(op backends.OpType, x *Tensor) *Tensor {
	x.AssertValid()
	shape, err := shapeinference.UnaryOp(op, x.shape)
	if err != nil {
		panic(err)
	}
	return newLazy(x.engine, shape, op, nil, x)
}

// Add returns the elementwise sum lhs+rhs. One of them can be a scalar.
func Add(lhs, rhs *Tensor) *Tensor { return binaryOp(backends.OpTypeAdd, lhs, rhs) }

// Sub returns the elementwise lhs-rhs. One of them can be a scalar.
func Sub(lhs, rhs *Tensor) *Tensor { return binaryOp(backends.OpTypeSub, lhs, rhs) }

// Mul returns the elementwise lhs*rhs. One of them can be a scalar.
func Mul(lhs, rhs *Tensor) *Tensor { return binaryOp(backends.OpTypeMul, lhs, rhs) }

// Div returns the elementwise lhs/rhs. One of them can be a scalar.
func Div(lhs, rhs *Tensor) *Tensor { return binaryOp(backends.OpTypeDiv, lhs, rhs) }

// Max returns the elementwise maximum. One of them can be a scalar.
func Max(lhs, rhs *Tensor) *Tensor { return binaryOp(backends.OpTypeMax, lhs, rhs) }

// Min returns the elementwise minimum. One of them can be a scalar.
func Min(lhs, rhs *Tensor) *Tensor { return binaryOp(backends.OpTypeMin, lhs, rhs) }

// Neg returns -x.
func Neg(x *Tensor) *Tensor { return unaryOp(backends.OpTypeNeg, x) }

// Abs returns the absolute value of x.
func Abs(x *Tensor) *Tensor { return unaryOp(backends.OpTypeAbs, x) }

// Exp returns e^x. x must be a float.
func Exp(x *Tensor) *Tensor { return unaryOp(backends.OpTypeExp, x) }

// Log returns the natural logarithm of x. x must be a float.
func Log(x *Tensor) *Tensor { return unaryOp(backends.OpTypeLog, x) }

// Sqrt returns the square root of x. x must be a float.
func Sqrt(x *Tensor) *Tensor { return unaryOp(backends.OpTypeSqrt, x) }

// Copy returns a new tensor with the same value as x, and its own buffer once realized.
func Copy(x *Tensor) *Tensor { return unaryOp(backends.OpTypeIdentity, x) }

// ReduceAllSum returns the scalar sum of all elements of x.
func ReduceAllSum(x *Tensor) *Tensor {
	x.AssertValid()
	shape, err := shapeinference.ReduceSumOp(x.shape)
	if err != nil {
		panic(err)
	}
	return newLazy(x.engine, shape, backends.OpTypeReduceSum, nil, x)
}

// ConvertDType converts x to the given dtype. It returns x itself if it already has the dtype.
func ConvertDType(x *Tensor, dtype dtypes.DType) *Tensor {
	x.AssertValid()
	if x.shape.DType == dtype {
		return x
	}
	shape, err := shapeinference.ConvertDTypeOp(x.shape, dtype)
	if err != nil {
		panic(err)
	}
	return newLazy(x.engine, shape, backends.OpTypeConvertDType, nil, x)
}

// Slice takes, for each axis, the elements from starts[axis] up to (excluding) limits[axis].
//
// strides is optional: if given, it must have one value per axis, and it takes every strides[axis] elements.
func Slice(x *Tensor, starts, limits []int, strides ...int) *Tensor {
	x.AssertValid()
	if len(strides) == 0 {
		strides = make([]int, x.Rank())
		for ii := range strides {
			strides[ii] = 1
		}
	}
	params := backends.SliceParams{
		Starts:  slices.Clone(starts),
		Limits:  slices.Clone(limits),
		Strides: slices.Clone(strides),
	}
	shape, err := shapeinference.SliceOp(x.shape, params)
	if err != nil {
		panic(err)
	}
	return newLazy(x.engine, shape, backends.OpTypeSlice, params, x)
}
