// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "github.com/gomlx/tracejit/pkg/core/shapes"

// Buffer represents actual data (a tensor) stored in the device that executes the kernels.
// It's used as input/output of kernel execution.
// A Buffer is always associated to a DeviceNum, even if there is only one.
//
// It is opaque from the tensors/jit perspective, but it must be comparable and its equality must
// be identity-based: two Buffer values are equal if and only if they refer to the same storage.
// In practice backends return pointers. The JIT uses Buffer values directly as map keys.
type Buffer any

// DataInterface is the Backend's sub-interface that defines the API to allocate buffers and
// transfer them to/from the host.
type DataInterface interface {
	// NewBuffer allocates an uninitialized buffer of the given shape on the device.
	NewBuffer(deviceNum DeviceNum, shape shapes.Shape) (Buffer, error)

	// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
	// freed immediately -- as opposed to waiting for a GC.
	//
	// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
	BufferFinalize(buffer Buffer) error

	// BufferShape returns the shape for the buffer.
	BufferShape(buffer Buffer) (shapes.Shape, error)

	// BufferDeviceNum returns the deviceNum for the buffer.
	BufferDeviceNum(buffer Buffer) (DeviceNum, error)

	// BufferToFlatData transfers the flat values of buffer to the Go flat array.
	// The slice flat must have the exact number of elements required to store the Buffer shape.
	//
	// See also BufferFromFlatData, BufferShape, and shapes.Shape.Size.
	BufferToFlatData(buffer Buffer, flat any) error

	// BufferFromFlatData transfers data from Go given as a flat slice (of the type corresponding to the shape DType)
	// to the deviceNum, and returns the corresponding Buffer.
	BufferFromFlatData(deviceNum DeviceNum, flat any, shape shapes.Shape) (Buffer, error)
}
