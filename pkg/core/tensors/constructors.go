// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math/rand/v2"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// fromHostFlat uploads flat to a new buffer. It doesn't dispatch any kernel.
func fromHostFlat(engine *Engine, flat any, shape shapes.Shape) *Tensor {
	if ints, ok := flat.([]int); ok {
		// Go's int is stored as Int64.
		flat = convertSlice[int, int64](ints)
		shape.DType = dtypes.Int64
	}
	buffer, err := engine.Backend().BufferFromFlatData(engine.DeviceNum(), flat, shape)
	if err != nil {
		panic(errors.WithMessagef(err, "uploading tensor with shape %s", shape))
	}
	return &Tensor{engine: engine, shape: shape, buffer: buffer}
}

func convertSlice[From, To dtypes.NumberNotComplex](src []From) []To {
	dst := make([]To, len(src))
	for ii, v := range src {
		dst[ii] = To(v)
	}
	return dst
}

// FromFlatDataAndDimensions creates a realized tensor with the given dimensions, filled with the flattened values
// given in `data`. The data is copied to a device buffer, no kernel is dispatched.
// The `DType` is inferred from the `data` type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](engine *Engine, data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf(
			"FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape,
			len(data),
			shape.Size(),
		)
	}
	return fromHostFlat(engine, data, shape)
}

// FromScalar creates a realized scalar tensor with the given value.
// The `DType` is inferred from the value.
func FromScalar[T dtypes.Supported](engine *Engine, value T) *Tensor {
	return FromFlatDataAndDimensions(engine, []T{value})
}

// Full creates a realized tensor with the given dimensions, filled with the given value replicated everywhere.
func Full[T dtypes.Supported](engine *Engine, value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	flat := make([]T, shape.Size())
	for ii := range flat {
		flat[ii] = value
	}
	return FromFlatDataAndDimensions(engine, flat, dimensions...)
}

// Randn creates a realized tensor with values sampled from the standard normal distribution, generated
// on the host with rng.
//
// Integer dtypes get the values rounded towards zero.
func Randn(engine *Engine, rng *rand.Rand, dtype dtypes.DType, dimensions ...int) *Tensor {
	shape := shapes.Make(dtype, dimensions...)
	values := make([]float64, shape.Size())
	for ii := range values {
		values[ii] = rng.NormFloat64()
	}
	var flat any
	switch dtype {
	case dtypes.Float64:
		flat = values
	case dtypes.Float32:
		flat = convertSlice[float64, float32](values)
	case dtypes.Float16:
		f16 := make([]float16.Float16, len(values))
		for ii, v := range values {
			f16[ii] = float16.Fromfloat32(float32(v))
		}
		flat = f16
	case dtypes.Int32:
		flat = convertSlice[float64, int32](values)
	case dtypes.Int64:
		flat = convertSlice[float64, int64](values)
	default:
		exceptions.Panicf("Randn: dtype %s not supported", dtype)
	}
	return fromHostFlat(engine, flat, shape)
}

// CopyFlatData realizes the tensor, if needed, and returns a copy of its flat data.
// Reading back the data doesn't dispatch any kernel.
//
// It returns an error if the generic type doesn't match the DType of the tensor.
func CopyFlatData[T dtypes.Supported](t *Tensor) ([]T, error) {
	t.AssertValid()
	if dtypes.FromGenericsType[T]() != t.shape.DType {
		var v T
		return nil, errors.Errorf("CopyFlatData[%T] is incompatible with Tensor's dtype %s", v, t.shape.DType)
	}
	if err := t.Realize(); err != nil {
		return nil, err
	}
	flat := make([]T, t.shape.Size())
	if err := t.engine.Backend().BufferToFlatData(t.buffer, flat); err != nil {
		return nil, errors.WithMessagef(err, "reading back tensor %s", t.shape)
	}
	return flat, nil
}

// MustCopyFlatData is like CopyFlatData, but panics on error.
func MustCopyFlatData[T dtypes.Supported](t *Tensor) []T {
	flat, err := CopyFlatData[T](t)
	if err != nil {
		panic(err)
	}
	return flat
}

// ToScalar returns the value of a scalar tensor, realizing it if needed.
//
// It will panic if the given generic type doesn't match the DType of the tensor, or if it is not a scalar.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if !t.shape.IsScalar() {
		var v T
		exceptions.Panicf("ToScalar[%T] requires scalar Tensor, got shape %s instead", v, t.shape)
	}
	return MustCopyFlatData[T](t)[0]
}

// Equal realizes both tensors and returns whether they have the same shape and values.
func Equal(a, b *Tensor) (bool, error) {
	if !a.shape.Equal(b.shape) {
		return false, nil
	}
	va, err := hostValues(a)
	if err != nil {
		return false, err
	}
	vb, err := hostValues(b)
	if err != nil {
		return false, err
	}
	return slices.Equal(va, vb), nil
}

// hostValues reads the tensor's values converted to float64, for comparisons and printing.
func hostValues(t *Tensor) ([]float64, error) {
	switch t.shape.DType {
	case dtypes.Float64:
		return CopyFlatData[float64](t)
	case dtypes.Float32:
		flat, err := CopyFlatData[float32](t)
		return convertSlice[float32, float64](flat), err
	case dtypes.Int32:
		flat, err := CopyFlatData[int32](t)
		return convertSlice[int32, float64](flat), err
	case dtypes.Int64:
		flat, err := CopyFlatData[int64](t)
		return convertSlice[int64, float64](flat), err
	case dtypes.Float16:
		flat, err := CopyFlatData[float16.Float16](t)
		values := make([]float64, len(flat))
		for ii, v := range flat {
			values[ii] = float64(v.Float32())
		}
		return values, err
	}
	return nil, errors.Errorf("dtype %s not supported for reading values", t.shape.DType)
}
