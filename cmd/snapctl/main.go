// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// snapctl builds, transfers and applies snapshots of a Pebble-backed column
// family store.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "snapctl [command] (flags)",
	Short:        "column family snapshot tool",
	Long:         ``,
	SilenceUsage: true,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "snapctl.yaml", "path of the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "log lifecycle and remote storage events")
	rootCmd.AddCommand(
		buildCmd,
		uploadCmd,
		downloadCmd,
		applyCmd,
		dumpCmd,
		cleanupCmd,
	)

	buildCmd.Flags().StringVar(
		&buildFormat, "format", "sst", "file format: plain or sst")
	buildCmd.Flags().StringSliceVar(
		&buildCFs, "cf", []string{"default", "lock", "write"}, "column families to include")
	buildCmd.Flags().StringVar(
		&buildStart, "start", "", "inclusive start key of the range")
	buildCmd.Flags().StringVar(
		&buildEnd, "end", "", "exclusive end key of the range (empty: to the end)")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
