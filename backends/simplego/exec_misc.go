// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracejit/backends"
	"github.com/x448/float16"
)

func init() {
	kernelExecutors[backends.OpTypeIdentity] = execIdentity
	kernelExecutors[backends.OpTypeConvertDType] = execConvertDType
	kernelExecutors[backends.OpTypeReduceSum] = execReduceSum
	kernelExecutors[backends.OpTypeSlice] = execSlice
}

// execIdentity copies the input into the output.
func execIdentity(_ *Backend, _ backends.OpType, _ any, outputs, inputs []*Buffer) {
	copyFlat(outputs[0].flat, inputs[0].flat)
}

// execConvertDType converts between any of the supported dtypes.
// Float16 values are converted through float32.
func execConvertDType(_ *Backend, op backends.OpType, _ any, outputs, inputs []*Buffer) {
	input, output := inputs[0], outputs[0]
	switch src := input.flat.(type) {
	case []int32:
		convertTo(src, output)
	case []int64:
		convertTo(src, output)
	case []float32:
		convertTo(src, output)
	case []float64:
		convertTo(src, output)
	case []float16.Float16:
		tmp := make([]float32, len(src))
		for ii, v := range src {
			tmp[ii] = v.Float32()
		}
		convertTo(tmp, output)
	default:
		exceptions.Panicf("unsupported data type %s for %s", input.shape.DType, op)
	}
}

func convertTo[From numericPOD](src []From, output *Buffer) {
	switch dst := output.flat.(type) {
	case []int32:
		convertGeneric(src, dst)
	case []int64:
		convertGeneric(src, dst)
	case []float32:
		convertGeneric(src, dst)
	case []float64:
		convertGeneric(src, dst)
	case []float16.Float16:
		for ii, v := range src {
			dst[ii] = float16.Fromfloat32(float32(v))
		}
	default:
		exceptions.Panicf("unsupported data type %s for ConvertDType", output.shape.DType)
	}
}

func convertGeneric[From, To numericPOD](src []From, dst []To) {
	for ii, v := range src {
		dst[ii] = To(v)
	}
}

// execReduceSum sums all elements of the input into a scalar.
func execReduceSum(_ *Backend, op backends.OpType, _ any, outputs, inputs []*Buffer) {
	input, output := inputs[0], outputs[0]
	switch src := input.flat.(type) {
	case []int32:
		output.flat.([]int32)[0] = reduceSumGeneric(src)
	case []int64:
		output.flat.([]int64)[0] = reduceSumGeneric(src)
	case []float32:
		output.flat.([]float32)[0] = reduceSumGeneric(src)
	case []float64:
		output.flat.([]float64)[0] = reduceSumGeneric(src)
	case []float16.Float16:
		var sum float32
		for _, v := range src {
			sum += v.Float32()
		}
		output.flat.([]float16.Float16)[0] = float16.Fromfloat32(sum)
	default:
		exceptions.Panicf("unsupported data type %s for %s", input.shape.DType, op)
	}
}

func reduceSumGeneric[T numericPOD](src []T) (sum T) {
	for _, v := range src {
		sum += v
	}
	return
}

// execSlice copies the strided window given by backends.SliceParams.
func execSlice(_ *Backend, op backends.OpType, params any, outputs, inputs []*Buffer) {
	input, output := inputs[0], outputs[0]
	sliceParams := params.(backends.SliceParams)
	srcStrides := input.shape.Strides()
	outDims := output.shape.Dimensions
	switch src := input.flat.(type) {
	case []int32:
		sliceGeneric(src, output.flat.([]int32), srcStrides, outDims, sliceParams)
	case []int64:
		sliceGeneric(src, output.flat.([]int64), srcStrides, outDims, sliceParams)
	case []float32:
		sliceGeneric(src, output.flat.([]float32), srcStrides, outDims, sliceParams)
	case []float64:
		sliceGeneric(src, output.flat.([]float64), srcStrides, outDims, sliceParams)
	case []float16.Float16:
		sliceGeneric(src, output.flat.([]float16.Float16), srcStrides, outDims, sliceParams)
	default:
		exceptions.Panicf("unsupported data type %s for %s", input.shape.DType, op)
	}
}

func sliceGeneric[T any](src, dst []T, srcStrides, outDims []int, params backends.SliceParams) {
	rank := len(outDims)
	outIdx := make([]int, rank)
	for flatIdx := range dst {
		srcIdx := 0
		for axis := range rank {
			srcIdx += (params.Starts[axis] + outIdx[axis]*params.Strides[axis]) * srcStrides[axis]
		}
		dst[flatIdx] = src[srcIdx]

		// Increment outIdx, last axis first.
		for axis := rank - 1; axis >= 0; axis-- {
			outIdx[axis]++
			if outIdx[axis] < outDims[axis] {
				break
			}
			outIdx[axis] = 0
		}
	}
}
