// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"slices"

	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Dispatch describes one kernel execution: the op, its parameters, and the concrete buffers
// it read and wrote.
type Dispatch struct {
	Op      backends.OpType
	Params  any
	Outputs []backends.Buffer
	Inputs  []backends.Buffer
}

// DispatchObserver is notified of every kernel successfully executed by an Engine.
//
// The Dispatch given is owned by the observer: its slices are not reused by the Engine.
type DispatchObserver interface {
	Observe(dispatch Dispatch)
}

// Engine executes kernels for tensors on one device of a backend.
//
// All kernel executions go through Engine.Dispatch, which counts them and notifies the
// observer, if one is set.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	backend   backends.Backend
	deviceNum backends.DeviceNum

	observer      DispatchObserver
	numDispatches int
}

// NewEngine creates an Engine that executes kernels on device 0 of the given backend.
func NewEngine(backend backends.Backend) *Engine {
	return &Engine{backend: backend}
}

// WithDevice sets the device where buffers are allocated and kernels executed. It returns the Engine itself.
func (e *Engine) WithDevice(deviceNum backends.DeviceNum) *Engine {
	e.deviceNum = deviceNum
	return e
}

// Backend used by the Engine.
func (e *Engine) Backend() backends.Backend {
	return e.backend
}

// DeviceNum returns the device used by the Engine.
func (e *Engine) DeviceNum() backends.DeviceNum {
	return e.deviceNum
}

// Observer returns the current observer, or nil.
func (e *Engine) Observer() DispatchObserver {
	return e.observer
}

// SetObserver sets (or clears, if observer is nil) the observer of dispatches, and returns the previous one.
func (e *Engine) SetObserver(observer DispatchObserver) (previous DispatchObserver) {
	previous = e.observer
	e.observer = observer
	return
}

// NumDispatches returns the total number of kernels dispatched through this Engine.
func (e *Engine) NumDispatches() int {
	return e.numDispatches
}

// NewBuffer allocates an uninitialized buffer on the Engine's device.
func (e *Engine) NewBuffer(shape shapes.Shape) (backends.Buffer, error) {
	buf, err := e.backend.NewBuffer(e.deviceNum, shape)
	if err != nil {
		return nil, errors.WithMessagef(err, "allocating buffer for shape %s", shape)
	}
	return buf, nil
}

// Dispatch executes one kernel against concrete buffers, and notifies the observer.
func (e *Engine) Dispatch(op backends.OpType, params any, outputs []backends.Buffer, inputs []backends.Buffer) error {
	if err := e.backend.Execute(op, params, outputs, inputs); err != nil {
		return err
	}
	e.numDispatches++
	if e.observer != nil {
		e.observer.Observe(Dispatch{
			Op:      op,
			Params:  params,
			Outputs: slices.Clone(outputs),
			Inputs:  slices.Clone(inputs),
		})
	}
	return nil
}
