// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/gomlx/tracejit/pkg/jit"
	"github.com/gomlx/tracejit/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var flagNoProgress bool

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare eager and JIT-ed calls of the model, with one controller per receiver running in parallel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(flagConfigPath, flagSettings)
		if err != nil {
			return err
		}
		results, err := runBench(cmd.Context(), cmd.ErrOrStderr(), cfg, !flagNoProgress)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Benchmark"))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), benchTable(results).Render())
		return nil
	},
}

func init() {
	benchCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "Don't display the progress bar.")
}

// benchResult holds the measurements of one receiver.
type benchResult struct {
	Receiver, Calls                int
	Eager, JIT                     time.Duration
	EagerDispatches, JITDispatches int
	Replays                        int
	Mismatches                     int
}

// Speedup of the JIT-ed calls over the eager ones.
func (r benchResult) Speedup() float64 {
	if r.JIT <= 0 {
		return 0
	}
	return float64(r.Eager) / float64(r.JIT)
}

// runBench runs cfg.Calls eager and JIT-ed calls for each of cfg.Receivers models in parallel.
// Each receiver has its own engine, all sharing the same backend.
func runBench(ctx context.Context, progressWriter io.Writer, cfg Config, showProgress bool) ([]benchResult, error) {
	dtype, err := cfg.ParseDType()
	if err != nil {
		return nil, err
	}
	backend := newBackend(cfg)
	defer backend.Finalize()

	var numReplays atomic.Int64
	var pBar *commandline.ProgressBar
	if showProgress {
		pBar = commandline.NewProgressBar(progressWriter, "calls", 2*cfg.Calls*cfg.Receivers,
			func() (string, string) { return "Replays", humanize.Comma(numReplays.Load()) })
	}

	results := make([]benchResult, cfg.Receivers)
	g, ctx := errgroup.WithContext(ctx)
	for ii := range cfg.Receivers {
		g.Go(func() error {
			var err error
			results[ii], err = benchReceiver(ctx, backend, cfg, ii, dtype, &numReplays, pBar)
			return errors.WithMessagef(err, "receiver #%d", ii)
		})
	}
	err = g.Wait()
	if pBar != nil {
		pBar.Done()
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// benchReceiver runs the eager loop and then the JIT-ed loop for one receiver.
func benchReceiver(ctx context.Context, backend backends.Backend, cfg Config, receiver int, dtype dtypes.DType,
	numReplays *atomic.Int64, pBar *commandline.ProgressBar) (benchResult, error) {
	r := benchResult{Receiver: receiver, Calls: cfg.Calls}
	engine := tensors.NewEngine(backend)
	rng := rand.New(rand.NewPCG(cfg.Seed+uint64(receiver), 0))
	m := newModel(engine, rng, dtype, cfg.Dims)
	method := newForwardMethod(engine, cfg)
	caller := bindForward(method, m, cfg)
	defer caller.Finalize()

	inputs := make([]*tensors.Tensor, cfg.Calls)
	for call := range cfg.Calls {
		inputs[call] = tensors.Randn(engine, rng, dtype, inputDims(cfg, call)...)
	}

	// Eager.
	eagerSums := make([]*tensors.Tensor, cfg.Calls)
	dispatchesBefore := engine.NumDispatches()
	start := time.Now()
	for call, x := range inputs {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		results, err := forward(m, x)
		if err != nil {
			return r, err
		}
		for _, result := range results {
			if err = result.(*tensors.Tensor).Realize(); err != nil {
				return r, err
			}
		}
		eagerSums[call] = results[1].(*tensors.Tensor)
		if pBar != nil {
			pBar.Add(1)
		}
	}
	r.Eager = time.Since(start)
	r.EagerDispatches = engine.NumDispatches() - dispatchesBefore

	// JIT-ed.
	dispatchesBefore = engine.NumDispatches()
	start = time.Now()
	for call, x := range inputs {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		results, err := caller.Call(x)
		if err != nil {
			return r, errors.WithMessagef(err, "call #%d", call)
		}
		matches, err := tensors.Equal(results[1].(*tensors.Tensor), eagerSums[call])
		if err != nil {
			return r, err
		}
		if !matches {
			r.Mismatches++
			klog.Warningf("receiver #%d, call #%d: JIT-ed result differs from the eager one", receiver, call)
		}
		replays := callerReplays(caller)
		numReplays.Add(int64(replays - r.Replays))
		r.Replays = replays
		if pBar != nil {
			pBar.Add(1)
		}
	}
	r.JIT = time.Since(start)
	r.JITDispatches = engine.NumDispatches() - dispatchesBefore
	return r, nil
}

// callerReplays returns the number of calls served by replaying a captured graph.
func callerReplays(caller jit.Caller) int {
	switch c := caller.(type) {
	case *jit.Controller:
		return c.NumReplays()
	case *jit.Specialized:
		return c.NumReplays()
	}
	return 0
}

// benchTable renders the results, one row per receiver, with the receivers whose JIT-ed results
// differed in red.
func benchTable(results []benchResult) *tableWithReds {
	table := newTable([]string{"Receiver", "Eager", "Eager rate", "JIT", "JIT rate", "Speedup",
		"Eager kernels", "JIT kernels", "Replays", "Mismatches"}, lipgloss.Right)
	for _, r := range results {
		table.Row(r.Mismatches > 0,
			humanize.Comma(int64(r.Receiver)),
			commandline.FormatDuration(r.Eager), commandline.FormatRate(r.Calls, r.Eager),
			commandline.FormatDuration(r.JIT), commandline.FormatRate(r.Calls, r.JIT),
			fmt.Sprintf("%.2fx", r.Speedup()),
			humanize.Comma(int64(r.EagerDispatches)), humanize.Comma(int64(r.JITDispatches)),
			humanize.Comma(int64(r.Replays)), humanize.Comma(int64(r.Mismatches)))
	}
	return table
}
