// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/gomlx/tracejit/pkg/jit"
	"github.com/gomlx/tracejit/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "Capture the model's kernel graph and save its description (msgpack) to the given path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flagConfigPath, flagSettings)
		if err != nil {
			return err
		}
		return runDump(cmd.OutOrStdout(), cfg, args[0])
	},
}

// runDump captures forward for one model, and writes the dump of its graph to path.
func runDump(w io.Writer, cfg Config, path string) error {
	path, err := fsutil.ExpandPath(path)
	if err != nil {
		return err
	}
	dtype, err := cfg.ParseDType()
	if err != nil {
		return err
	}
	if cfg.Specialized {
		klog.Warningf("dump captures only the graph for dims %v: \"specialized\" is ignored", cfg.Dims)
		cfg.Specialized = false
	}
	backend := newBackend(cfg)
	defer backend.Finalize()
	engine := tensors.NewEngine(backend)
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	m := newModel(engine, rng, dtype, cfg.Dims)
	caller := bindForward(newForwardMethod(engine, cfg), m, cfg)
	defer caller.Finalize()

	// Warmup and capture.
	controller := caller.(*jit.Controller)
	for call := range 2 {
		x := tensors.Randn(engine, rng, dtype, cfg.Dims...)
		if _, err := controller.Call(x); err != nil {
			return errors.WithMessagef(err, "call #%d", call)
		}
	}
	g := controller.Graph()
	if g == nil {
		return errors.Errorf("controller %q is %s after 2 calls", controller.Name(), controller.State())
	}
	if err = fsutil.WriteFileAtomic(path, g.Dump); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %q", path)
	}
	_, _ = fmt.Fprintf(w, "%s\nSaved to %q (%s)\n", g, path, humanize.Bytes(uint64(info.Size())))
	return nil
}
