// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyArgs(t *testing.T) {
	engine := newTestEngine()
	a := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2)
	b := tensors.FromScalar(engine, int32(3))
	list := []*tensors.Tensor{a}

	parsed, err := ClassifyArgs([]any{a, list, Kwargs{"z": b, "alpha": 0.5}, "name"})
	require.NoError(t, err)
	assert.Equal(t, 3, parsed.NumPositional)
	assert.Equal(t, []string{"alpha", "z"}, parsed.Keywords)
	require.Len(t, parsed.All, 5)

	names := make([]string, len(parsed.All))
	kinds := make([]ArgKind, len(parsed.All))
	for ii, arg := range parsed.All {
		names[ii] = arg.Name
		kinds[ii] = arg.Kind
	}
	assert.Equal(t, []string{"#0", "#1", "#2", "alpha", "z"}, names)
	assert.Equal(t, []ArgKind{TensorArg, OpaqueArg, OpaqueArg, OpaqueArg, TensorArg}, kinds)
	assert.True(t, parsed.All[4].Keyword)
	assert.Same(t, b, parsed.All[4].Tensor)

	tensorArgs := parsed.TensorArgs()
	require.Len(t, tensorArgs, 2)
	assert.Equal(t, "#0", tensorArgs[0].Name)
	assert.Equal(t, "z", tensorArgs[1].Name)

	parsed, err = ClassifyArgs([]any{Kwargs(nil)})
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.NumPositional)
	assert.Empty(t, parsed.Keywords)
	assert.NotNil(t, parsed.Keywords)

	_, err = ClassifyArgs([]any{Kwargs{}, Kwargs{}})
	require.Error(t, err)
	assert.Equal(t, "Opaque", OpaqueArg.String())
	assert.Equal(t, "ArgKind(9)", ArgKind(9).String())
}

func TestFingerprint(t *testing.T) {
	engine := newTestEngine()
	rng := newTestRNG()
	fingerprintOf := func(args ...any) Fingerprint {
		return NewFingerprint(must.M1(ClassifyArgs(args)))
	}
	a := tensors.Randn(engine, rng, dtypes.Float32, 2, 3)
	b := tensors.Randn(engine, rng, dtypes.Float32, 2, 3)
	fp := fingerprintOf(a, 1, Kwargs{"w": b})

	// Values of tensors and of non-tensor arguments are not part of the fingerprint.
	same := fingerprintOf(tensors.Randn(engine, rng, dtypes.Float32, 2, 3), "other", Kwargs{"w": tensors.Neg(b)})
	assert.True(t, fp.Equal(same))
	assert.Equal(t, fp.Key(), same.Key())
	assert.Equal(t, "no difference", fp.Diff(same))

	others := []Fingerprint{
		fingerprintOf(a, 1, Kwargs{"v": b}),
		fingerprintOf(a, 1),
		fingerprintOf(a, b, Kwargs{"w": b}),
		fingerprintOf(1, a, Kwargs{"w": b}),
		fingerprintOf(tensors.Randn(engine, rng, dtypes.Float64, 2, 3), 1, Kwargs{"w": b}),
		fingerprintOf(tensors.Randn(engine, rng, dtypes.Float32, 3, 2), 1, Kwargs{"w": b}),
	}
	for ii, other := range others {
		assert.False(t, fp.Equal(other), "fingerprint #%d", ii)
		assert.NotEqual(t, fp.Key(), other.Key(), "fingerprint #%d", ii)
		assert.NotEqual(t, "no difference", fp.Diff(other), "fingerprint #%d", ii)
	}
	assert.Equal(t, "expected tensor argument #0, got tensor argument #1", fp.Diff(others[3]))
	assert.Equal(t, "expected a non-tensor for argument #1, got a tensor with shape (Float32)[2 3]",
		fingerprintOf(a, 1).Diff(fingerprintOf(a, b)))
	assert.Equal(t, "(2 positional, keywords [w]){#0:(Float32)[2 3], w:(Float32)[2 3]}", fp.String())

	// Keywords that look like the encoding of other fields don't collide.
	k1 := fingerprintOf(a, Kwargs{"x;y": 1})
	k2 := fingerprintOf(a, Kwargs{"x": 1, "y": 2})
	assert.NotEqual(t, k1.Key(), k2.Key())
}

func TestTrackBuffers(t *testing.T) {
	engine := newTestEngine()
	a := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2)
	b := tensors.FromFlatDataAndDimensions(engine, []float32{3, 4}, 2)
	pending := tensors.Add(a, b)

	parsed := must.M1(ClassifyArgs([]any{a, b, pending}))
	buffers, err := TrackBuffers(parsed.TensorArgs())
	require.NoError(t, err)
	assert.Equal(t, 3, buffers.Len())
	assert.True(t, pending.IsRealized(), "tracking realizes pending tensors")
	assert.True(t, buffers.Has(must.M1(pending.Buffer())))

	parsed = must.M1(ClassifyArgs([]any{a, b, Kwargs{"again": a}}))
	_, err = TrackBuffers(parsed.TensorArgs())
	var aliasing *AliasingError
	require.True(t, errors.As(err, &aliasing), "got error %v", err)
	assert.Equal(t, &AliasingError{First: "#0", Second: "again"}, aliasing)
	assert.Equal(t, "duplicate input buffer: arguments #0 and again share the same buffer", aliasing.Error())

	// Distinct tensors with the same values are not aliases.
	c := tensors.FromFlatDataAndDimensions(engine, []float32{1, 2}, 2)
	_, err = TrackBuffers(must.M1(ClassifyArgs([]any{a, c})).TensorArgs())
	require.NoError(t, err)
}
