// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/tracejit/backends"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// SlotDump describes one slot of a KernelGraph. Buffer contents are not included.
type SlotDump struct {
	ID         int    `msgpack:"id"`
	Role       string `msgpack:"role"`
	DType      string `msgpack:"dtype"`
	Dimensions []int  `msgpack:"dims"`
}

// InvocationDump describes one kernel of a KernelGraph.
type InvocationDump struct {
	Op      string                `msgpack:"op"`
	Slice   *backends.SliceParams `msgpack:"slice,omitempty"`
	Inputs  []int                 `msgpack:"inputs"`
	Outputs []int                 `msgpack:"outputs"`
}

// GraphDump is a serializable description of a KernelGraph, used for inspection and debugging.
// It can't be replayed: frozen buffer values are not part of it.
type GraphDump struct {
	Name        string           `msgpack:"name"`
	ID          string           `msgpack:"id"`
	Slots       []SlotDump       `msgpack:"slots"`
	Invocations []InvocationDump `msgpack:"invocations"`
	InputSlots  []int            `msgpack:"input_slots"`
	OutputSlots []int            `msgpack:"output_slots"`
}

// Describe returns a GraphDump of the graph.
func (g *KernelGraph) Describe() *GraphDump {
	d := &GraphDump{
		Name:        g.name,
		ID:          g.id.String(),
		Slots:       make([]SlotDump, len(g.slots)),
		Invocations: make([]InvocationDump, len(g.invocations)),
		InputSlots:  append([]int(nil), g.inputSlots...),
		OutputSlots: append([]int(nil), g.outputSlots...),
	}
	for ii, slot := range g.slots {
		d.Slots[ii] = SlotDump{
			ID:         slot.ID,
			Role:       slot.Role.String(),
			DType:      slot.Shape.DType.String(),
			Dimensions: append([]int(nil), slot.Shape.Dimensions...),
		}
	}
	for ii, inv := range g.invocations {
		invDump := InvocationDump{
			Op:      inv.Op.String(),
			Inputs:  append([]int(nil), inv.Inputs...),
			Outputs: append([]int(nil), inv.Outputs...),
		}
		if params, ok := inv.Params.(backends.SliceParams); ok {
			invDump.Slice = &params
		}
		d.Invocations[ii] = invDump
	}
	return d
}

// Dump writes the msgpack encoded GraphDump of the graph to w.
func (g *KernelGraph) Dump(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(g.Describe()); err != nil {
		return errors.Wrapf(err, "encoding dump of KernelGraph %q", g.name)
	}
	return nil
}

// ReadDump reads a GraphDump written by KernelGraph.Dump.
func ReadDump(r io.Reader) (*GraphDump, error) {
	d := &GraphDump{}
	if err := msgpack.NewDecoder(r).Decode(d); err != nil {
		return nil, errors.Wrap(err, "decoding KernelGraph dump")
	}
	for _, slot := range d.Slots {
		if _, err := SlotRoleString(slot.Role); err != nil {
			return nil, errors.WithMessagef(err, "slot #%d of KernelGraph dump", slot.ID)
		}
	}
	return d, nil
}

// RoleCount returns the number of slots with the given role.
func (d *GraphDump) RoleCount(role SlotRole) int {
	var count int
	for _, slot := range d.Slots {
		if r, err := SlotRoleString(slot.Role); err == nil && r == role {
			count++
		}
	}
	return count
}

var slotPrefixes = map[string]string{
	"Input":    "in",
	"Output":   "out",
	"Internal": "tmp",
	"Constant": "const",
}

// String returns a multi-line listing of the kernels, one per line, as "out = Op(in, ...)".
func (d *GraphDump) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "KernelGraph %q (%s): %d slots, %d kernels\n", d.Name, d.ID, len(d.Slots), len(d.Invocations))
	slotName := func(id int) string {
		if id < 0 || id >= len(d.Slots) {
			return fmt.Sprintf("?%d", id)
		}
		return fmt.Sprintf("%s%d", slotPrefixes[d.Slots[id].Role], id)
	}
	joinSlots := func(ids []int) string {
		names := make([]string, len(ids))
		for ii, id := range ids {
			names[ii] = slotName(id)
		}
		return strings.Join(names, ", ")
	}
	for _, slot := range d.Slots {
		_, _ = fmt.Fprintf(&sb, "  %s: %s (%s)%v\n", slotName(slot.ID), slot.Role, slot.DType, slot.Dimensions)
	}
	for ii, inv := range d.Invocations {
		_, _ = fmt.Fprintf(&sb, "  #%d: %s = %s(%s)", ii, joinSlots(inv.Outputs), inv.Op, joinSlots(inv.Inputs))
		if inv.Slice != nil {
			_, _ = fmt.Fprintf(&sb, " starts=%v limits=%v strides=%v", inv.Slice.Starts, inv.Slice.Limits, inv.Slice.Strides)
		}
		sb.WriteString("\n")
	}
	_, _ = fmt.Fprintf(&sb, "  inputs: [%s], outputs: [%s]", joinSlots(d.InputSlots), joinSlots(d.OutputSlots))
	return sb.String()
}
