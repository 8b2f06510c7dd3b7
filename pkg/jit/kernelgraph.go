// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SlotRole is the role of a buffer slot in a KernelGraph.
type SlotRole int

const (
	// RoleInput slots are bound to the buffers of the tracked arguments on each replay.
	RoleInput SlotRole = iota

	// RoleOutput slots are written by the graph and read back as results.
	RoleOutput

	// RoleInternal slots are written and read by the graph only.
	RoleInternal

	// RoleConstant slots hold copies of buffers that existed before the traced call and weren't
	// tracked arguments. Their values are frozen into the graph.
	RoleConstant
)

var slotRoleNames = [...]string{
	RoleInput:    "Input",
	RoleOutput:   "Output",
	RoleInternal: "Internal",
	RoleConstant: "Constant",
}

// String implements fmt.Stringer.
func (r SlotRole) String() string {
	if r < 0 || int(r) >= len(slotRoleNames) {
		return fmt.Sprintf("SlotRole(%d)", int(r))
	}
	return slotRoleNames[r]
}

// SlotRoleString converts the name of a role back to a SlotRole.
func SlotRoleString(name string) (SlotRole, error) {
	for role, roleName := range slotRoleNames {
		if strings.EqualFold(name, roleName) {
			return SlotRole(role), nil
		}
	}
	return RoleInput, errors.Errorf("unknown slot role %q", name)
}

// Slot is one buffer position in a KernelGraph.
type Slot struct {
	ID    int
	Role  SlotRole
	Shape shapes.Shape

	// buffer currently bound: owned by the graph, except for Input slots, which are bound to the
	// caller's buffers during a replay.
	buffer backends.Buffer
	owned  bool
}

// KernelInvocation is one recorded kernel execution, with buffers replaced by slot ids.
type KernelInvocation struct {
	Op      backends.OpType
	Params  any
	Inputs  []int
	Outputs []int
}

// KernelGraph is the frozen, replayable sequence of kernels of a traced call.
//
// Its slots and their roles are fixed once frozen (see Recorder.Freeze). Replay binds Input slots
// to new buffers, executes the kernels in the recorded order and reads back the Output slots.
type KernelGraph struct {
	id      uuid.UUID
	name    string
	backend backends.Backend

	slots       []*Slot
	invocations []KernelInvocation
	inputSlots  []int
	outputSlots []int

	numReplays  int
	isFinalized bool
}

// ID returns the unique id of the graph.
func (g *KernelGraph) ID() uuid.UUID { return g.id }

// Name of the graph, usually the name of the Controller that captured it.
func (g *KernelGraph) Name() string { return g.name }

// SetName sets the name of the graph. It returns a reference to itself so calls can be cascaded.
func (g *KernelGraph) SetName(name string) *KernelGraph {
	g.name = name
	return g
}

// Slots returns the slots of the graph. They should not be modified.
func (g *KernelGraph) Slots() []*Slot { return g.slots }

// Invocations returns the recorded kernels, in execution order. They should not be modified.
func (g *KernelGraph) Invocations() []KernelInvocation { return g.invocations }

// NumInvocations returns the number of kernels executed by each replay.
func (g *KernelGraph) NumInvocations() int { return len(g.invocations) }

// InputSlots returns the slot id of each tracked argument, in order.
func (g *KernelGraph) InputSlots() []int { return g.inputSlots }

// OutputSlots returns the slot id of each tensor result, in order.
func (g *KernelGraph) OutputSlots() []int { return g.outputSlots }

// NumReplays returns how many times the graph has been replayed.
func (g *KernelGraph) NumReplays() int { return g.numReplays }

// RoleCount returns the number of slots with the given role.
func (g *KernelGraph) RoleCount(role SlotRole) int {
	var count int
	for _, slot := range g.slots {
		if slot.Role == role {
			count++
		}
	}
	return count
}

// Memory returns the number of bytes of the buffers owned by the graph (all but the Input slots).
func (g *KernelGraph) Memory() uintptr {
	var memory uintptr
	for _, slot := range g.slots {
		if slot.owned {
			memory += slot.Shape.Memory()
		}
	}
	return memory
}

// OpsHistogram returns the number of invocations of each op.
func (g *KernelGraph) OpsHistogram() map[backends.OpType]int {
	histogram := make(map[backends.OpType]int)
	for _, inv := range g.invocations {
		histogram[inv.Op]++
	}
	return histogram
}

// String implements fmt.Stringer, with a one-line summary of the graph.
func (g *KernelGraph) String() string {
	if g == nil {
		return "KernelGraph<nil>"
	}
	histogram := g.OpsHistogram()
	ops := slices.Sorted(maps.Keys(histogram))
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		parts = append(parts, fmt.Sprintf("%s:%d", op, histogram[op]))
	}
	return fmt.Sprintf("KernelGraph %q (%s): %d kernels [%s], %d slots (%d input, %d output, %d internal, %d constant), %s owned",
		g.name, g.id, len(g.invocations), strings.Join(parts, " "), len(g.slots),
		g.RoleCount(RoleInput), g.RoleCount(RoleOutput), g.RoleCount(RoleInternal), g.RoleCount(RoleConstant),
		humanize.Bytes(uint64(g.Memory())))
}

// Replay executes the graph with the given input buffers, one per tracked argument, and returns
// new buffers with the values of the Output slots.
//
// The kernels are dispatched through engine, so its observer and dispatch counter see them. The
// returned buffers never alias the graph's slots: they are owned by the caller.
func (g *KernelGraph) Replay(engine *tensors.Engine, inputs []backends.Buffer) ([]backends.Buffer, error) {
	if g.isFinalized {
		return nil, errors.Errorf("KernelGraph %q has already been finalized", g.name)
	}
	if len(inputs) != len(g.inputSlots) {
		return nil, errors.Errorf("KernelGraph %q: expected %d inputs, got %d", g.name, len(g.inputSlots), len(inputs))
	}
	for ii, buf := range inputs {
		slot := g.slots[g.inputSlots[ii]]
		shape, err := engine.Backend().BufferShape(buf)
		if err != nil {
			return nil, errors.WithMessagef(err, "KernelGraph %q: input #%d", g.name, ii)
		}
		if !shape.Equal(slot.Shape) {
			return nil, errors.Errorf("KernelGraph %q: input #%d has shape %s, graph was captured with %s",
				g.name, ii, shape, slot.Shape)
		}
	}

	// Bind inputs, and unbind them when done.
	for ii, buf := range inputs {
		g.slots[g.inputSlots[ii]].buffer = buf
	}
	defer func() {
		for _, id := range g.inputSlots {
			g.slots[id].buffer = nil
		}
	}()

	for invIdx, inv := range g.invocations {
		ins := make([]backends.Buffer, len(inv.Inputs))
		for ii, id := range inv.Inputs {
			ins[ii] = g.slots[id].buffer
		}
		outs := make([]backends.Buffer, len(inv.Outputs))
		for ii, id := range inv.Outputs {
			outs[ii] = g.slots[id].buffer
		}
		if err := engine.Dispatch(inv.Op, inv.Params, outs, ins); err != nil {
			return nil, errors.WithMessagef(err, "KernelGraph %q: replaying kernel #%d (%s)", g.name, invIdx, inv.Op)
		}
	}

	outputs := make([]backends.Buffer, len(g.outputSlots))
	for ii, id := range g.outputSlots {
		outputs[ii] = g.slots[id].buffer
	}
	results, err := readBack(engine, outputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "KernelGraph %q", g.name)
	}
	g.numReplays++
	return results, nil
}

// readBack copies each buffer into a new one, with an Identity kernel dispatched through engine.
func readBack(engine *tensors.Engine, buffers []backends.Buffer) ([]backends.Buffer, error) {
	results := make([]backends.Buffer, len(buffers))
	for ii, buf := range buffers {
		shape, err := engine.Backend().BufferShape(buf)
		if err != nil {
			return nil, err
		}
		results[ii], err = engine.NewBuffer(shape)
		if err != nil {
			return nil, err
		}
		err = engine.Dispatch(backends.OpTypeIdentity, nil, []backends.Buffer{results[ii]}, []backends.Buffer{buf})
		if err != nil {
			return nil, errors.WithMessagef(err, "reading back output #%d", ii)
		}
	}
	return results, nil
}

// Finalize releases the buffers owned by the graph. The graph can't be replayed afterwards.
func (g *KernelGraph) Finalize() {
	if g.isFinalized {
		return
	}
	for _, slot := range g.slots {
		if slot.owned && slot.buffer != nil {
			_ = g.backend.BufferFinalize(slot.buffer)
		}
		slot.buffer = nil
		slot.owned = false
	}
	g.isFinalized = true
}
