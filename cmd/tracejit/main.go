// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// tracejit demonstrates, benchmarks and inspects JIT-ed tensor functions.
//
// Usage:
//
//	tracejit demo --set "calls=5;dims=4,4"
//	tracejit bench --config bench.toml --set receivers=4
//	tracejit dump ~/graphs/model.msgpack
//	tracejit inspect ~/graphs/model.msgpack
package main

import (
	"flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	flagSettings   string
	flagConfigPath string
)

var rootCmd = &cobra.Command{
	Use:   "tracejit",
	Short: "Trace, cache and replay the kernels of tensor functions",
	Long: `tracejit runs a small model through a JIT controller: the first call runs eagerly,
the second one records the kernels dispatched, and later calls replay them without
running the model's Go code.`,
	SilenceUsage: true,
}

func main() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().StringVar(&flagSettings, "set", "",
		`Settings, a list of "param=value" separated by ";". Valid params: `+settingsUsage())
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "",
		"TOML file with settings, applied before --set.")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(inspectCmd)

	err := rootCmd.Execute()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
