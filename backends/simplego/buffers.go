// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Compile-time check:
var _ backends.DataInterface = (*Backend)(nil)

// Buffer for SimpleGo backend holds a shape and a reference to the flat data.
//
// Buffers are handed out as pointers, so two backends.Buffer values are equal only if they
// refer to the same storage.
type Buffer struct {
	shape shapes.Shape
	valid bool

	// flat is always a slice of the underlying data type (shape.DType).
	flat any
}

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

// getBufferPool for given dtype/length.
func (b *Backend) getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() interface{} {
				return &Buffer{
					flat:  reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
					shape: shapes.Make(dtype, length),
				}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from backend pool of buffers.
func (b *Backend) getBuffer(dtype dtypes.DType, length int) *Buffer {
	pool := b.getBufferPool(dtype, length)
	buf := pool.Get().(*Buffer)
	buf.valid = true
	return buf
}

// putBuffer back into the backend pool of buffers.
// After this any references to buffer should be dropped.
func (b *Backend) putBuffer(buffer *Buffer) {
	if buffer == nil || !buffer.shape.Ok() {
		return
	}
	buffer.valid = false
	pool := b.getBufferPool(buffer.shape.DType, buffer.shape.Size())
	pool.Put(buffer)
}

// copyFlat assumes both flat slices are of the same underlying type.
func copyFlat(flatDst, flatSrc any) {
	reflect.Copy(reflect.ValueOf(flatDst), reflect.ValueOf(flatSrc))
}

// bufferIssues lists what is wrong with a buffer that is not usable, or returns nil.
func bufferIssues(buffer *Buffer) (issues []string) {
	if buffer == nil {
		return []string{"buffer was nil"}
	}
	if buffer.flat == nil {
		issues = append(issues, "buffer.flat was nil")
	}
	if !buffer.shape.Ok() {
		issues = append(issues, "buffer.shape was invalid")
	}
	if !buffer.valid {
		issues = append(issues, "buffer was marked as invalid")
	}
	return
}

// toBuffer casts a backends.Buffer to a valid *Buffer of this backend.
func toBuffer(buffer backends.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return nil, errors.Errorf("buffer (%T) is not a %q backend buffer", buffer, BackendName)
	}
	if issues := bufferIssues(buf); len(issues) > 0 {
		return nil, errors.Errorf("buffer %p: %s -- buffer was already finalized!?", buf, strings.Join(issues, ", "))
	}
	return buf, nil
}

// NewBuffer allocates an uninitialized buffer with the given shape, taken from the pool of buffers.
func (b *Backend) NewBuffer(deviceNum backends.DeviceNum, shape shapes.Shape) (backends.Buffer, error) {
	if b.isFinalized {
		return nil, errors.Errorf("backend %q has already been finalized", BackendName)
	}
	if deviceNum != 0 {
		return nil, errors.Errorf("backend (%s) only supports deviceNum 0, cannot create buffer on deviceNum %d (shape=%s)",
			b.Name(), deviceNum, shape)
	}
	if !shape.Ok() || !Capabilities.DTypes[shape.DType] {
		return nil, errors.Errorf("backend (%s) does not support buffers with shape %s", b.Name(), shape)
	}
	return b.newBuffer(shape), nil
}

func (b *Backend) newBuffer(shape shapes.Shape) *Buffer {
	buffer := b.getBuffer(shape.DType, shape.Size())
	buffer.shape = shape.Clone()
	return buffer
}

// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
// freed immediately.
//
// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
func (b *Backend) BufferFinalize(backendBuffer backends.Buffer) error {
	buffer, err := toBuffer(backendBuffer)
	if err != nil {
		return errors.WithMessage(err, "BufferFinalize")
	}
	b.putBuffer(buffer)
	return nil
}

// BufferShape returns the shape for the buffer.
func (b *Backend) BufferShape(buffer backends.Buffer) (shapes.Shape, error) {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return shapes.Invalid(), errors.Errorf("buffer (%T) is not a %q backend buffer", buffer, BackendName)
	}
	return buf.shape, nil
}

// BufferDeviceNum returns the deviceNum for the buffer.
func (b *Backend) BufferDeviceNum(buffer backends.Buffer) (backends.DeviceNum, error) {
	_, ok := buffer.(*Buffer)
	if !ok {
		return 0, errors.Errorf("buffer (%T) is not a %q backend buffer", buffer, BackendName)
	}
	return 0, nil
}

// BufferToFlatData transfers the flat values of the buffer to the Go flat array.
// The slice flat must have the exact number of elements required to store the backends.Buffer shape.
//
// See also BufferFromFlatData, BufferShape, and shapes.Shape.Size.
func (b *Backend) BufferToFlatData(backendBuffer backends.Buffer, flat any) error {
	buf, err := toBuffer(backendBuffer)
	if err != nil {
		return errors.WithMessage(err, "BufferToFlatData")
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice || flatV.Type().Elem() != buf.shape.DType.GoType() {
		return errors.Errorf("BufferToFlatData: flat (%T) is not a slice of %s", flat, buf.shape.DType.GoType())
	}
	if flatV.Len() != buf.shape.Size() {
		return errors.Errorf("BufferToFlatData: flat has %d elements, buffer shape %s requires %d",
			flatV.Len(), buf.shape, buf.shape.Size())
	}
	copyFlat(flat, buf.flat)
	return nil
}

// BufferFromFlatData transfers data from Go given as a flat slice (of the type corresponding to the shape DType)
// to the deviceNum, and returns the corresponding backends.Buffer.
func (b *Backend) BufferFromFlatData(deviceNum backends.DeviceNum, flat any, shape shapes.Shape) (backends.Buffer, error) {
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		return nil, errors.Errorf("BufferFromFlatData: flat data must be a slice, got %T", flat)
	}
	if dtypes.FromGoType(flatV.Type().Elem()) != shape.DType {
		return nil, errors.Errorf("flat data type (%s) does not match shape DType (%s)",
			flatV.Type().Elem(), shape.DType)
	}
	if flatV.Len() != shape.Size() {
		return nil, errors.Errorf("BufferFromFlatData: flat has %d elements, shape %s requires %d",
			flatV.Len(), shape, shape.Size())
	}
	buffer, err := b.NewBuffer(deviceNum, shape)
	if err != nil {
		return nil, err
	}
	copyFlat(buffer.(*Buffer).flat, flat)
	return buffer, nil
}
