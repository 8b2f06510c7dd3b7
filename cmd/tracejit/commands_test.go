// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/gomlx/tracejit/pkg/jit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	for _, specialized := range []bool{false, true} {
		t.Run(map[bool]string{false: "controller", true: "specialized"}[specialized], func(t *testing.T) {
			cfg := testConfig()
			cfg.Specialized = specialized
			var buf bytes.Buffer
			require.NoError(t, runDemo(&buf, cfg))
			out := buf.String()
			assert.Contains(t, out, jit.StateCaptured.String())
			assert.Contains(t, out, "true")
			assert.NotContains(t, out, "false")
			assert.Contains(t, out, "Captured graph")
		})
	}
}

func TestRunBench(t *testing.T) {
	cfg := testConfig()
	cfg.Receivers = 3
	results, err := runBench(context.Background(), &bytes.Buffer{}, cfg, false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for ii, r := range results {
		assert.Equal(t, ii, r.Receiver)
		assert.Equal(t, 6, r.Calls)
		assert.Equal(t, 4, r.Replays)
		assert.Zero(t, r.Mismatches)
		assert.Positive(t, r.EagerDispatches)
		assert.Positive(t, r.JITDispatches)
	}
	assert.Contains(t, benchTable(results).Render(), "Speedup")

	// Two specializations, with 3 calls each.
	cfg.Specialized = true
	results, err = runBench(context.Background(), &bytes.Buffer{}, cfg, true)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 2, r.Replays)
		assert.Zero(t, r.Mismatches)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runBench(ctx, &bytes.Buffer{}, cfg, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDumpAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphs", "forward.msgpack")
	cfg := testConfig()
	var buf bytes.Buffer
	require.NoError(t, runDump(&buf, cfg, path))
	assert.Contains(t, buf.String(), "Saved to")

	buf.Reset()
	require.NoError(t, runInspect(&buf, path))
	out := buf.String()
	assert.Contains(t, out, "forward")
	assert.Contains(t, out, "Sqrt(")
	assert.Contains(t, out, "ReduceSum(")
	assert.Contains(t, out, jit.RoleConstant.String())

	require.Error(t, runInspect(&buf, filepath.Join(t.TempDir(), "missing.msgpack")))
}
