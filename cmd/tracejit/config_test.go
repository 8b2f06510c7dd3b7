// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = loadConfig("", "calls=5;dims=4,4;specialized=true;dtype=Float64")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Calls)
	assert.Equal(t, []int{4, 4}, cfg.Dims)
	assert.True(t, cfg.Specialized)
	dtype, err := cfg.ParseDType()
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float64, dtype)

	// File first, then --set overrides it.
	configPath := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("calls = 7\nreceivers = 3\nmax_cache = 2\n"), 0o644))
	cfg, err = loadConfig(configPath, "calls=9")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Calls)
	assert.Equal(t, 3, cfg.Receivers)
	assert.Equal(t, 2, cfg.MaxCache)

	_, err = loadConfig("", "unknown=1")
	require.Error(t, err)
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"), "")
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	for name, update := range map[string]func(cfg *Config){
		"int dtype":         func(cfg *Config) { cfg.DType = "Int32" },
		"invalid dtype":     func(cfg *Config) { cfg.DType = "Float33" },
		"no dims":           func(cfg *Config) { cfg.Dims = nil },
		"zero dim":          func(cfg *Config) { cfg.Dims = []int{3, 0} },
		"specialized dim 1": func(cfg *Config) { cfg.Specialized = true; cfg.Dims = []int{1} },
		"no calls":          func(cfg *Config) { cfg.Calls = 0 },
		"no receivers":      func(cfg *Config) { cfg.Receivers = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			update(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestInputDims(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dims = []int{8, 6}
	assert.Equal(t, []int{8, 6}, inputDims(cfg, 1))
	cfg.Specialized = true
	assert.Equal(t, []int{8, 6}, inputDims(cfg, 0))
	assert.Equal(t, []int{4, 3}, inputDims(cfg, 1))
	assert.Equal(t, []int{8, 6}, inputDims(cfg, 2))
}

// testConfig is a small configuration that runs quickly on the "go" backend.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = "go"
	cfg.Dims = []int{4, 4}
	cfg.Calls = 6
	return cfg
}
