// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"bytes"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/shapes"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordAxpy records y = a*x + b, with a traced constant, and freezes it.
func recordAxpy(t *testing.T, engine *tensors.Engine) (g *KernelGraph, a *tensors.Tensor) {
	a = tensors.FromScalar(engine, float32(3))
	x := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2, 3}, 3)
	b := tensors.FromFlatDataAndDimensions(engine, []float32{10, 20, 30}, 3)

	recorder := NewRecorder()
	stop := recorder.Start(engine)
	y := tensors.Add(tensors.Mul(a, x), b)
	require.NoError(t, y.Realize())
	stop()
	require.Equal(t, 2, recorder.Len())
	assert.Nil(t, engine.Observer())
	assert.Equal(t, []float32{13, 26, 39}, tensors.MustCopyFlatData[float32](y))

	inputs := []backends.Buffer{must.M1(x.Buffer()), must.M1(b.Buffer())}
	g, err := recorder.Freeze(engine, inputs, []backends.Buffer{must.M1(y.Buffer())})
	require.NoError(t, err)
	return g, a
}

func TestRecorder_Freeze(t *testing.T) {
	engine := newTestEngine()
	g, a := recordAxpy(t, engine)
	defer g.Finalize()

	assert.Equal(t, 2, g.NumInvocations())
	assert.Equal(t, 2, g.RoleCount(RoleInput))
	assert.Equal(t, 1, g.RoleCount(RoleConstant))
	assert.Equal(t, 1, g.RoleCount(RoleInternal))
	assert.Equal(t, 1, g.RoleCount(RoleOutput))
	assert.Equal(t, []int{0, 1}, g.InputSlots())
	require.Len(t, g.OutputSlots(), 1)

	// The graph owns all its non-input buffers, including a copy of the Constant one.
	slots := g.Slots()
	for _, slot := range slots {
		switch slot.Role {
		case RoleInput:
			assert.Nil(t, slot.buffer)
			assert.False(t, slot.owned)
		case RoleConstant:
			assert.True(t, slot.buffer != must.M1(a.Buffer()))
			assert.True(t, slot.owned)
		default:
			assert.True(t, slot.owned)
		}
	}
	// Internal and Output [3]float32, plus the scalar float32 constant.
	assert.Equal(t, uintptr(2*3*4+4), g.Memory())

	invs := g.Invocations()
	assert.Equal(t, backends.OpTypeMul, invs[0].Op)
	assert.Equal(t, backends.OpTypeAdd, invs[1].Op)
	assert.Equal(t, invs[0].Outputs[0], invs[1].Inputs[0])
	assert.Equal(t, map[backends.OpType]int{backends.OpTypeMul: 1, backends.OpTypeAdd: 1}, g.OpsHistogram())
	assert.Contains(t, g.String(), "2 kernels [Add:1 Mul:1]")
}

func TestKernelGraph_Replay(t *testing.T) {
	engine := newTestEngine()
	g, _ := recordAxpy(t, engine)

	x := tensors.FromFlatDataAndDimensions(engine, []float32{-1, 0, 1}, 3)
	b := tensors.FromFlatDataAndDimensions(engine, []float32{1, 1, 1}, 3)
	dispatchesBefore := engine.NumDispatches()
	outputs, err := g.Replay(engine, []backends.Buffer{must.M1(x.Buffer()), must.M1(b.Buffer())})
	require.NoError(t, err)
	assert.Equal(t, 3, engine.NumDispatches()-dispatchesBefore)
	require.Len(t, outputs, 1)
	y := must.M1(tensors.FromBuffer(engine, outputs[0]))
	assert.Equal(t, []float32{-2, 1, 4}, tensors.MustCopyFlatData[float32](y))
	assert.Equal(t, 1, g.NumReplays())
	for _, id := range g.InputSlots() {
		assert.Nil(t, g.Slots()[id].buffer, "inputs must be unbound after a replay")
	}

	// Replays are observed by a recorder installed in the engine.
	recorder := NewRecorder()
	stop := recorder.Start(engine)
	_, err = g.Replay(engine, []backends.Buffer{must.M1(x.Buffer()), must.M1(b.Buffer())})
	stop()
	require.NoError(t, err)
	assert.Equal(t, 3, recorder.Len())

	// Errors.
	_, err = g.Replay(engine, []backends.Buffer{must.M1(x.Buffer())})
	require.ErrorContains(t, err, "expected 2 inputs")
	wrongShape := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2)
	_, err = g.Replay(engine, []backends.Buffer{must.M1(x.Buffer()), must.M1(wrongShape.Buffer())})
	require.ErrorContains(t, err, "input #1 has shape")
	g.Finalize()
	_, err = g.Replay(engine, []backends.Buffer{must.M1(x.Buffer()), must.M1(b.Buffer())})
	require.ErrorContains(t, err, "finalized")
}

func TestKernelGraph_ConstantOutlivesTracedTensor(t *testing.T) {
	engine := newTestEngine()
	g, a := recordAxpy(t, engine)
	defer g.Finalize()

	// Finalizing the traced tensor returns its buffer to the backend, and a new tensor of the
	// same shape may reuse it.
	a.Finalize()
	other := tensors.FromScalar(engine, float32(100))
	defer other.Finalize()

	x := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2, 3}, 3)
	b := tensors.FromFlatDataAndDimensions(engine, []float32{0, 0, 0}, 3)
	outputs, err := g.Replay(engine, []backends.Buffer{must.M1(x.Buffer()), must.M1(b.Buffer())})
	require.NoError(t, err)
	y := must.M1(tensors.FromBuffer(engine, outputs[0]))
	assert.Equal(t, []float32{3, 6, 9}, tensors.MustCopyFlatData[float32](y))
}

func TestRecorder_Nested(t *testing.T) {
	engine := newTestEngine()
	x := tensors.FromFlatDataAndDimensions(engine, []float64{1, 2}, 2)

	outer := NewRecorder()
	stopOuter := outer.Start(engine)
	inner := NewRecorder()
	stopInner := inner.Start(engine)
	tensors.Neg(x).MustRealize()
	stopInner()
	tensors.Abs(x).MustRealize()
	stopOuter()

	assert.Equal(t, 1, inner.Len())
	require.Equal(t, 2, outer.Len())
	assert.Equal(t, backends.OpTypeNeg, outer.Dispatches()[0].Op)
	assert.Equal(t, backends.OpTypeAbs, outer.Dispatches()[1].Op)
	assert.Nil(t, engine.Observer())
}

func TestRecorder_FreezeErrors(t *testing.T) {
	engine := newTestEngine()
	x := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2)
	y := tensors.FromFlatDataAndDimensions(engine, []float32{3, 4}, 2)
	xBuf, yBuf := must.M1(x.Buffer()), must.M1(y.Buffer())

	// Writing into a tracked input.
	recorder := NewRecorder()
	stop := recorder.Start(engine)
	require.NoError(t, engine.Dispatch(backends.OpTypeIdentity, nil, []backends.Buffer{xBuf}, []backends.Buffer{yBuf}))
	stop()
	_, err := recorder.Freeze(engine, []backends.Buffer{xBuf, yBuf}, nil)
	require.ErrorContains(t, err, "existed before the traced call")

	// Same buffer as two inputs.
	_, err = NewRecorder().Freeze(engine, []backends.Buffer{xBuf, xBuf}, nil)
	require.ErrorIs(t, err, ErrAliasing)
}

func TestSlotRole(t *testing.T) {
	for _, role := range []SlotRole{RoleInput, RoleOutput, RoleInternal, RoleConstant} {
		parsed, err := SlotRoleString(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}
	parsed, err := SlotRoleString("internal")
	require.NoError(t, err)
	assert.Equal(t, RoleInternal, parsed)
	_, err = SlotRoleString("scratch")
	require.Error(t, err)
	assert.Equal(t, "SlotRole(7)", SlotRole(7).String())
}

func TestKernelGraph_Dump(t *testing.T) {
	engine := newTestEngine()
	c := New(engine, func(args ...any) ([]any, error) {
		x := args[0].(*tensors.Tensor)
		return []any{tensors.Sqrt(tensors.Slice(x, []int{1}, []int{5}, 2))}, nil
	}).SetName("sqrt_odd")
	for range 2 {
		_, err := c.Call(tensors.FromFlatDataAndDimensions(engine, []float64{0, 1, 4, 9, 16, 25}, 6))
		require.NoError(t, err)
	}
	g := c.Graph()
	require.NotNil(t, g)

	var buf bytes.Buffer
	require.NoError(t, g.Dump(&buf))
	d, err := ReadDump(&buf)
	require.NoError(t, err)
	assert.Equal(t, "sqrt_odd", d.Name)
	assert.Equal(t, g.ID().String(), d.ID)
	require.Len(t, d.Slots, 3)
	assert.Equal(t, SlotDump{ID: 0, Role: "Input", DType: "Float64", Dimensions: []int{6}}, d.Slots[0])
	assert.Equal(t, "Output", d.Slots[2].Role)
	assert.Equal(t, []int{2}, d.Slots[2].Dimensions)
	require.Len(t, d.Invocations, 2)
	assert.Equal(t, "Slice", d.Invocations[0].Op)
	require.NotNil(t, d.Invocations[0].Slice)
	assert.Equal(t, []int{1}, d.Invocations[0].Slice.Starts)
	assert.Equal(t, []int{2}, d.Invocations[0].Slice.Strides)
	assert.Equal(t, "Sqrt", d.Invocations[1].Op)
	assert.Nil(t, d.Invocations[1].Slice)
	assert.Equal(t, []int{0}, d.InputSlots)
	assert.Equal(t, []int{2}, d.OutputSlots)
	assert.Equal(t, 1, d.RoleCount(RoleInternal))

	listing := d.String()
	assert.Contains(t, listing, "#0: tmp1 = Slice(in0) starts=[1] limits=[5] strides=[2]")
	assert.Contains(t, listing, "#1: out2 = Sqrt(tmp1)")

	_, err = ReadDump(bytes.NewReader([]byte("not msgpack")))
	require.Error(t, err)
}

func TestFreeze_ShapesOfSlots(t *testing.T) {
	engine := newTestEngine()
	x := tensors.FromFlatDataAndDimensions(engine, []int32{1, 2, 3, 4}, 2, 2)
	recorder := NewRecorder()
	stop := recorder.Start(engine)
	sum := tensors.ReduceAllSum(tensors.ConvertDType(x, dtypes.Float32)).MustRealize()
	stop()
	g, err := recorder.Freeze(engine, []backends.Buffer{must.M1(x.Buffer())}, []backends.Buffer{must.M1(sum.Buffer())})
	require.NoError(t, err)
	defer g.Finalize()
	slots := g.Slots()
	require.Len(t, slots, 3)
	assert.True(t, slots[1].Shape.Equal(shapes.Make(dtypes.Float32, 2, 2)))
	assert.True(t, slots[2].Shape.Equal(shapes.Make(dtypes.Float32)))
	assert.Equal(t, RoleOutput, slots[2].Role)
}
