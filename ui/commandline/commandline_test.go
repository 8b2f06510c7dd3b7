// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Backend  string   `toml:"backend"`
	Calls    int      `toml:"calls"`
	Dims     []int    `toml:"dims"`
	Scale    float64  `toml:"scale"`
	Verbose  bool     `toml:"verbose"`
	Tags     []string `toml:"tags"`
	Ignored  string   `toml:"-"`
	Receiver uint32
	hidden   int
}

func TestParseSettings(t *testing.T) {
	cfg := testConfig{Calls: 10, Dims: []int{2, 2}}
	paramsSet, err := ParseSettings("backend=go:parallelism=2;calls=1_000;dims=64, 32;scale=0.5;verbose=true;tags=a,b;receiver=3;", &cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "calls", "dims", "scale", "verbose", "tags", "receiver"}, paramsSet)
	assert.Equal(t, "go:parallelism=2", cfg.Backend)
	assert.Equal(t, 1000, cfg.Calls)
	assert.Equal(t, []int{64, 32}, cfg.Dims)
	assert.Equal(t, 0.5, cfg.Scale)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	assert.Equal(t, uint32(3), cfg.Receiver)

	_, err = ParseSettings("ignored=x", &cfg)
	require.ErrorContains(t, err, "unknown parameter")
	_, err = ParseSettings("hidden=1", &cfg)
	require.Error(t, err)
	_, err = ParseSettings("calls", &cfg)
	require.ErrorContains(t, err, "<param>=<value>")
	_, err = ParseSettings("calls=many", &cfg)
	require.ErrorContains(t, err, `parameter "calls"`)
	_, err = ParseSettings("calls=1", cfg)
	require.ErrorContains(t, err, "pointer to a struct")

	assert.Equal(t, []string{"backend", "calls", "dims", "receiver", "scale", "tags", "verbose"}, SettingNames(cfg))
	assert.Contains(t, SprintSettings(&cfg), `"calls": (int) 1000`)
}

func TestParseSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte("calls = 7\ndims = [3, 4]\n"), 0o644))
	cfg := testConfig{Calls: 10}
	paramsSet, err := ParseSettings("file:"+path+";scale=2", &cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"calls", "dims", "scale"}, paramsSet)
	assert.Equal(t, 7, cfg.Calls)
	assert.Equal(t, []int{3, 4}, cfg.Dims)
	assert.Equal(t, 2.0, cfg.Scale)

	require.NoError(t, os.WriteFile(path, []byte("unknown_key = 1\n"), 0o644))
	_, err = ParseSettings("file:"+path, &cfg)
	require.ErrorContains(t, err, "unknown settings")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23ms", FormatDuration(1234567*time.Nanosecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
	assert.Equal(t, "100.0/s", FormatRate(50, 500*time.Millisecond))
	assert.Equal(t, "-", FormatRate(50, 0))
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pBar := NewProgressBar(&buf, "replaying", 10)
	for range 10 {
		pBar.Add(1)
	}
	pBar.Done()
	assert.Contains(t, buf.String(), "replaying")
	assert.Contains(t, buf.String(), "100%")
}
