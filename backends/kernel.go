// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

// KernelInterface is the Backend's sub-interface that executes one kernel against concrete buffers.
type KernelInterface interface {
	// Execute runs the kernel op reading inputs and writing into the preallocated outputs.
	//
	// The outputs must have been allocated (NewBuffer) with the shapes the op produces, see package
	// shapeinference. params is op specific: SliceParams for OpTypeSlice, nil for every other op.
	//
	// Execute must be deterministic given the same input values, and it must never keep references to
	// the buffers after it returns: the JIT replays the same op against other buffers later.
	Execute(op OpType, params any, outputs []Buffer, inputs []Buffer) error
}

// SliceParams are the parameters of OpTypeSlice: the output takes, for each axis, the elements
// from Starts[axis] up to (excluding) Limits[axis], every Strides[axis] elements.
type SliceParams struct {
	Starts  []int `msgpack:"starts"`
	Limits  []int `msgpack:"limits"`
	Strides []int `msgpack:"strides"`
}
