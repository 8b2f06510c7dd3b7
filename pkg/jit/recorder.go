// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"

	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Recorder is a tensors.DispatchObserver that records every kernel dispatched while it is installed.
//
// If the engine had another observer installed when the recording started (for instance an outer
// Recorder), the Recorder forwards every dispatch to it.
type Recorder struct {
	dispatches []tensors.Dispatch
	next       tensors.DispatchObserver
}

var _ tensors.DispatchObserver = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe implements tensors.DispatchObserver.
func (r *Recorder) Observe(dispatch tensors.Dispatch) {
	r.dispatches = append(r.dispatches, dispatch)
	if r.next != nil {
		r.next.Observe(dispatch)
	}
}

// Start installs the recorder as the engine's observer. It returns a function that restores the
// previous observer.
func (r *Recorder) Start(engine *tensors.Engine) (stop func()) {
	r.next = engine.SetObserver(r)
	return func() {
		engine.SetObserver(r.next)
		r.next = nil
	}
}

// Len returns the number of dispatches recorded.
func (r *Recorder) Len() int { return len(r.dispatches) }

// Dispatches returns the recorded dispatches, in order.
func (r *Recorder) Dispatches() []tensors.Dispatch { return r.dispatches }

// Freeze converts the recorded dispatches into a KernelGraph.
//
// inputs are the buffers of the tracked arguments, in order, and outputs the buffers of the tensor
// results. Buffers are mapped to slots as follows:
//
//   - inputs become Input slots, one per argument, in order.
//   - buffers read by a kernel that were never seen before become Constant slots: they existed before
//     the call and are not tracked, so their current value is baked into the graph.
//   - buffers written by a kernel become Internal slots.
//   - outputs that are Internal slots become Output slots. Outputs never written by the trace become
//     Constant slots.
//
// The graph owns new buffers, allocated with engine, for all its non-input slots. Constant slots are
// filled with a copy of the traced buffers, dispatched through engine.
func (r *Recorder) Freeze(engine *tensors.Engine, inputs, outputs []backends.Buffer) (*KernelGraph, error) {
	backend := engine.Backend()
	g := &KernelGraph{
		id:      uuid.New(),
		backend: backend,
	}
	slotOf := make(map[backends.Buffer]int, len(inputs)+2*len(r.dispatches))
	newSlot := func(buf backends.Buffer, role SlotRole) (int, error) {
		shape, err := backend.BufferShape(buf)
		if err != nil {
			return -1, errors.WithMessagef(err, "freezing kernel graph")
		}
		id := len(g.slots)
		g.slots = append(g.slots, &Slot{ID: id, Role: role, Shape: shape, buffer: buf})
		slotOf[buf] = id
		return id, nil
	}

	g.inputSlots = make([]int, len(inputs))
	for ii, buf := range inputs {
		if prev, found := slotOf[buf]; found {
			return nil, errors.WithStack(&AliasingError{First: fmt.Sprintf("input #%d", prev), Second: fmt.Sprintf("input #%d", ii)})
		}
		id, err := newSlot(buf, RoleInput)
		if err != nil {
			return nil, err
		}
		g.inputSlots[ii] = id
	}

	g.invocations = make([]KernelInvocation, 0, len(r.dispatches))
	for _, dispatch := range r.dispatches {
		inv := KernelInvocation{
			Op:      dispatch.Op,
			Params:  dispatch.Params,
			Inputs:  make([]int, len(dispatch.Inputs)),
			Outputs: make([]int, len(dispatch.Outputs)),
		}
		for ii, buf := range dispatch.Inputs {
			id, found := slotOf[buf]
			if !found {
				var err error
				id, err = newSlot(buf, RoleConstant)
				if err != nil {
					return nil, err
				}
			}
			inv.Inputs[ii] = id
		}
		for ii, buf := range dispatch.Outputs {
			id, found := slotOf[buf]
			if found && g.slots[id].Role != RoleInternal {
				return nil, errors.Errorf("kernel %s writes into a buffer (slot #%d, role %s) that existed before the traced call",
					dispatch.Op, id, g.slots[id].Role)
			}
			if !found {
				var err error
				id, err = newSlot(buf, RoleInternal)
				if err != nil {
					return nil, err
				}
			}
			inv.Outputs[ii] = id
		}
		g.invocations = append(g.invocations, inv)
	}

	g.outputSlots = make([]int, len(outputs))
	for ii, buf := range outputs {
		id, found := slotOf[buf]
		if !found {
			var err error
			id, err = newSlot(buf, RoleConstant)
			if err != nil {
				return nil, err
			}
		}
		if g.slots[id].Role == RoleInternal {
			g.slots[id].Role = RoleOutput
		}
		g.outputSlots[ii] = id
	}

	// The graph owns all its non-input buffers: traced buffers belong to tensors that may be
	// finalized, and their buffers reused, after the capture.
	for _, slot := range g.slots {
		if slot.Role == RoleInput {
			slot.buffer = nil
			continue
		}
		traced := slot.buffer
		buf, err := engine.NewBuffer(slot.Shape)
		if err != nil {
			g.Finalize()
			return nil, err
		}
		slot.buffer = buf
		slot.owned = true
		if slot.Role == RoleConstant {
			err = engine.Dispatch(backends.OpTypeIdentity, nil, []backends.Buffer{buf}, []backends.Buffer{traced})
			if err != nil {
				g.Finalize()
				return nil, errors.WithMessagef(err, "freezing constant slot #%d", slot.ID)
			}
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("froze %s", g)
	}
	return g, nil
}
