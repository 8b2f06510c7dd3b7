// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tracejit/pkg/jit"
	"github.com/gomlx/tracejit/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Print the kernel graph saved with dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.OutOrStdout(), args[0])
	},
}

func runInspect(w io.Writer, path string) error {
	path, err := fsutil.ExpandPath(path)
	if err != nil {
		return err
	}
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("dump file %q doesn't exist", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	d, err := jit.ReadDump(f)
	if err != nil {
		return errors.WithMessagef(err, "reading %q", path)
	}

	summary := newTable(nil, lipgloss.Right, lipgloss.Left)
	summary.Row(false, "name", d.Name)
	summary.Row(false, "id", d.ID)
	summary.Row(false, "kernels", humanize.Comma(int64(len(d.Invocations))))
	for _, role := range []jit.SlotRole{jit.RoleInput, jit.RoleOutput, jit.RoleInternal, jit.RoleConstant} {
		summary.Row(false, fmt.Sprintf("%s slots", role), humanize.Comma(int64(d.RoleCount(role))))
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Graph"))
	_, _ = fmt.Fprintln(w, summary.Render())

	slots := newTable([]string{"Slot", "Role", "DType", "Dimensions"}, lipgloss.Right, lipgloss.Left)
	for _, slot := range d.Slots {
		// Constants are highlighted: their values were frozen when the graph was captured.
		slots.Row(slot.Role == jit.RoleConstant.String(),
			humanize.Comma(int64(slot.ID)), slot.Role, slot.DType, fmt.Sprintf("%v", slot.Dimensions))
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("Slots"))
	_, _ = fmt.Fprintln(w, slots.Render())

	_, _ = fmt.Fprintln(w, titleStyle.Render("Kernels"))
	_, _ = fmt.Fprintln(w, d.String())
	return nil
}
