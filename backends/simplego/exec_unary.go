// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/x448/float16"
)

func init() {
	for _, op := range []backends.OpType{
		backends.OpTypeNeg, backends.OpTypeAbs, backends.OpTypeExp,
		backends.OpTypeLog, backends.OpTypeSqrt,
	} {
		kernelExecutors[op] = execUnary
	}
}

// execUnary executes the elementwise unary ops.
func execUnary(backend *Backend, op backends.OpType, _ any, outputs, inputs []*Buffer) {
	input, output := inputs[0], outputs[0]
	switch output.shape.DType {
	case dtypes.Int32:
		execUnaryGeneric(backend, unaryFunc[int32](op), input.flat.([]int32), output.flat.([]int32))
	case dtypes.Int64:
		execUnaryGeneric(backend, unaryFunc[int64](op), input.flat.([]int64), output.flat.([]int64))
	case dtypes.Float32:
		execUnaryGeneric(backend, unaryFunc[float32](op), input.flat.([]float32), output.flat.([]float32))
	case dtypes.Float64:
		execUnaryGeneric(backend, unaryFunc[float64](op), input.flat.([]float64), output.flat.([]float64))
	case dtypes.Float16:
		fn := unaryFunc[float32](op)
		fn16 := func(x float16.Float16) float16.Float16 { return float16.Fromfloat32(fn(x.Float32())) }
		execUnaryGeneric(backend, fn16, input.flat.([]float16.Float16), output.flat.([]float16.Float16))
	default:
		exceptions.Panicf("unsupported data type %s for %s", output.shape.DType, op)
	}
}

// unaryFunc returns the scalar function for the unary op.
// Exp, Log and Sqrt are only called for float types.
func unaryFunc[T numericPOD](op backends.OpType) func(x T) T {
	switch op {
	case backends.OpTypeNeg:
		return func(x T) T { return -x }
	case backends.OpTypeAbs:
		return func(x T) T {
			if x < 0 {
				return -x
			}
			return x
		}
	case backends.OpTypeExp:
		return func(x T) T { return T(math.Exp(float64(x))) }
	case backends.OpTypeLog:
		return func(x T) T { return T(math.Log(float64(x))) }
	case backends.OpTypeSqrt:
		return func(x T) T { return T(math.Sqrt(float64(x))) }
	}
	exceptions.Panicf("op %s is not an elementwise unary operation", op)
	return nil
}

func execUnaryGeneric[T any](backend *Backend, fn func(x T) T, input, output []T) {
	backend.workers.ParallelFor(len(output), minParallelChunk, func(start, end int) {
		for ii := start; ii < end; ii++ {
			output[ii] = fn(input[ii])
		}
	})
}
