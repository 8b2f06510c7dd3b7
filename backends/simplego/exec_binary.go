// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/x448/float16"
)

// This file implements binary operations.
// One optimization supported is specially handling the cases where one of the operands is a scalar,
// in which case it becomes almost a unary operation with a constant value.

func init() {
	for _, op := range []backends.OpType{
		backends.OpTypeAdd, backends.OpTypeSub, backends.OpTypeMul,
		backends.OpTypeDiv, backends.OpTypeMax, backends.OpTypeMin,
	} {
		kernelExecutors[op] = execBinary
	}
}

// execBinary executes all standard binary operations.
func execBinary(backend *Backend, op backends.OpType, _ any, outputs, inputs []*Buffer) {
	lhs, rhs, output := inputs[0], inputs[1], outputs[0]
	switch output.shape.DType {
	case dtypes.Int32:
		execBinaryGeneric(backend, binaryFunc[int32](op), lhs.flat.([]int32), rhs.flat.([]int32), output.flat.([]int32))
	case dtypes.Int64:
		execBinaryGeneric(backend, binaryFunc[int64](op), lhs.flat.([]int64), rhs.flat.([]int64), output.flat.([]int64))
	case dtypes.Float32:
		execBinaryGeneric(backend, binaryFunc[float32](op), lhs.flat.([]float32), rhs.flat.([]float32), output.flat.([]float32))
	case dtypes.Float64:
		execBinaryGeneric(backend, binaryFunc[float64](op), lhs.flat.([]float64), rhs.flat.([]float64), output.flat.([]float64))
	case dtypes.Float16:
		fn := binaryFunc[float32](op)
		fn16 := func(a, b float16.Float16) float16.Float16 {
			return float16.Fromfloat32(fn(a.Float32(), b.Float32()))
		}
		execBinaryGeneric(backend, fn16, lhs.flat.([]float16.Float16), rhs.flat.([]float16.Float16), output.flat.([]float16.Float16))
	default:
		exceptions.Panicf("unsupported data type %s for %s", output.shape.DType, op)
	}
}

// binaryFunc returns the scalar function for the binary op.
func binaryFunc[T numericPOD](op backends.OpType) func(a, b T) T {
	switch op {
	case backends.OpTypeAdd:
		return func(a, b T) T { return a + b }
	case backends.OpTypeSub:
		return func(a, b T) T { return a - b }
	case backends.OpTypeMul:
		return func(a, b T) T { return a * b }
	case backends.OpTypeDiv:
		return func(a, b T) T { return a / b }
	case backends.OpTypeMax:
		return func(a, b T) T { return max(a, b) }
	case backends.OpTypeMin:
		return func(a, b T) T { return min(a, b) }
	}
	exceptions.Panicf("op %s is not a binary operation", op)
	return nil
}

// execBinaryGeneric applies fn elementwise. Either lhs or rhs may be a scalar, in which case it is broadcast.
func execBinaryGeneric[T any](backend *Backend, fn func(a, b T) T, lhs, rhs, output []T) {
	backend.workers.ParallelFor(len(output), minParallelChunk, func(start, end int) {
		switch {
		case len(lhs) == 1:
			c := lhs[0]
			for ii := start; ii < end; ii++ {
				output[ii] = fn(c, rhs[ii])
			}
		case len(rhs) == 1:
			c := rhs[0]
			for ii := start; ii < end; ii++ {
				output[ii] = fn(lhs[ii], c)
			}
		default:
			for ii := start; ii < end; ii++ {
				output[ii] = fn(lhs[ii], rhs[ii])
			}
		}
	})
}
