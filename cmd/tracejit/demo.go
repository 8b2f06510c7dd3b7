// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/gomlx/tracejit/pkg/jit"
	"github.com/gomlx/tracejit/ui/commandline"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Call a JIT-ed model a few times, showing the state of the controller after each call",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(flagConfigPath, flagSettings)
		if err != nil {
			return err
		}
		return runDemo(cmd.OutOrStdout(), cfg)
	},
}

// runDemo calls the JIT-ed forward cfg.Calls times for one model, and compares each result with
// the eager one.
func runDemo(w io.Writer, cfg Config) error {
	dtype, err := cfg.ParseDType()
	if err != nil {
		return err
	}
	backend := newBackend(cfg)
	defer backend.Finalize()
	engine := tensors.NewEngine(backend)
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	m := newModel(engine, rng, dtype, cfg.Dims)
	method := newForwardMethod(engine, cfg)
	caller := bindForward(method, m, cfg)

	table := newTable([]string{"Call", "Input", "Controller", "Kernels", "Duration", "Sum", "Matches eager"},
		lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for call := range cfg.Calls {
		x := tensors.Randn(engine, rng, dtype, inputDims(cfg, call)...)
		dispatchesBefore := engine.NumDispatches()
		start := time.Now()
		results, err := caller.Call(x)
		elapsed := time.Since(start)
		if err != nil {
			return errors.WithMessagef(err, "call #%d", call)
		}
		numKernels := engine.NumDispatches() - dispatchesBefore

		eager, err := forward(m, x)
		if err != nil {
			return err
		}
		matches, err := tensors.Equal(results[0].(*tensors.Tensor), eager[0].(*tensors.Tensor))
		if err != nil {
			return err
		}
		sum := results[1].(*tensors.Tensor)
		table.Row(!matches,
			humanize.Comma(int64(call)), x.Shape().String(), describeCaller(caller, x),
			humanize.Comma(int64(numKernels)), commandline.FormatDuration(elapsed),
			sum.Summary(3), fmt.Sprintf("%v", matches))
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Calls"))
	_, _ = fmt.Fprintln(w, table.Render())

	for _, g := range callerGraphs(caller) {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Captured graph"))
		_, _ = fmt.Fprintln(w, graphSummaryTable(g).Render())
	}
	return nil
}

// describeCaller returns the state of the controller that served the call with x.
func describeCaller(caller jit.Caller, x *tensors.Tensor) string {
	switch c := caller.(type) {
	case *jit.Controller:
		return c.State().String()
	case *jit.Specialized:
		args, err := jit.ClassifyArgs([]any{x})
		if err != nil {
			return err.Error()
		}
		if sub := c.Controller(jit.NewFingerprint(args)); sub != nil {
			return fmt.Sprintf("%s (%d specializations)", sub.State(), c.Len())
		}
		return fmt.Sprintf("%d specializations", c.Len())
	}
	return fmt.Sprintf("%T", caller)
}

// callerGraphs returns the graphs captured by the caller.
func callerGraphs(caller jit.Caller) []*jit.KernelGraph {
	var graphs []*jit.KernelGraph
	switch c := caller.(type) {
	case *jit.Controller:
		if g := c.Graph(); g != nil {
			graphs = append(graphs, g)
		}
	case *jit.Specialized:
		for _, fp := range c.Fingerprints() {
			if g := c.Controller(fp).Graph(); g != nil {
				graphs = append(graphs, g)
			}
		}
	}
	return graphs
}

func graphSummaryTable(g *jit.KernelGraph) *tableWithReds {
	table := newTable(nil, lipgloss.Right, lipgloss.Left)
	table.Row(false, "name", g.Name())
	table.Row(false, "id", g.ID().String())
	table.Row(false, "kernels", humanize.Comma(int64(g.NumInvocations())))
	for _, role := range []jit.SlotRole{jit.RoleInput, jit.RoleOutput, jit.RoleInternal, jit.RoleConstant} {
		table.Row(false, fmt.Sprintf("%s slots", role), humanize.Comma(int64(g.RoleCount(role))))
	}
	table.Row(false, "owned memory", humanize.Bytes(uint64(g.Memory())))
	table.Row(false, "replays", humanize.Comma(int64(g.NumReplays())))
	return table
}
