// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	_ "github.com/gomlx/tracejit/backends/default"
	"github.com/gomlx/tracejit/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of the commands, set with --config and --set.
type Config struct {
	// Backend configuration, e.g. "go:parallelism=4". If empty, backends.New() is used.
	Backend string `toml:"backend"`

	DType string `toml:"dtype"`
	Dims  []int  `toml:"dims"`

	// Calls per receiver.
	Calls     int `toml:"calls"`
	Receivers int `toml:"receivers"`

	// Specialized uses one Specialized controller per receiver, and alternates the shape of the
	// input between Dims and half of Dims.
	Specialized bool `toml:"specialized"`
	MaxCache    int  `toml:"max_cache"`

	Seed uint64 `toml:"seed"`
}

// DefaultConfig returns the configuration used when no settings are given.
func DefaultConfig() Config {
	return Config{
		DType:     "Float32",
		Dims:      []int{64, 64},
		Calls:     100,
		Receivers: 1,
		MaxCache:  -1,
		Seed:      42,
	}
}

func settingsUsage() string {
	return strings.Join(commandline.SettingNames(Config{}), ", ")
}

// loadConfig returns the default configuration updated with the TOML file at configPath (if not
// empty) and then with settings.
func loadConfig(configPath, settings string) (Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		settings = "file:" + configPath + ";" + settings
	}
	paramsSet, err := commandline.ParseSettings(settings, &cfg)
	if err != nil {
		return Config{}, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("settings changed: %q\n%s", paramsSet, commandline.SprintSettings(&cfg))
	}
	return cfg, nil
}

// Validate checks the values of the configuration.
func (cfg Config) Validate() error {
	if _, err := cfg.ParseDType(); err != nil {
		return err
	}
	if len(cfg.Dims) == 0 {
		return errors.New("dims must have at least one dimension")
	}
	for _, dim := range cfg.Dims {
		if dim <= 0 {
			return errors.Errorf("dims must be positive, got %v", cfg.Dims)
		}
	}
	if cfg.Specialized {
		for _, dim := range cfg.Dims {
			if dim < 2 {
				return errors.Errorf("specialized requires dims >= 2 (it alternates with half the dims), got %v", cfg.Dims)
			}
		}
	}
	if cfg.Calls <= 0 {
		return errors.Errorf("calls must be positive, got %d", cfg.Calls)
	}
	if cfg.Receivers <= 0 {
		return errors.Errorf("receivers must be positive, got %d", cfg.Receivers)
	}
	return nil
}

// ParseDType returns the DType of the inputs and weights.
func (cfg Config) ParseDType() (dtypes.DType, error) {
	dtype, err := dtypes.DTypeString(cfg.DType)
	if err != nil {
		return dtypes.InvalidDType, errors.Wrapf(err, "invalid dtype %q", cfg.DType)
	}
	switch dtype {
	case dtypes.Float16, dtypes.Float32, dtypes.Float64:
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("dtype must be Float16, Float32 or Float64, got %s", dtype)
}

// newBackend creates the backend configured.
func newBackend(cfg Config) backends.Backend {
	if cfg.Backend == "" {
		return backends.New()
	}
	return backends.NewWithConfig(cfg.Backend)
}
