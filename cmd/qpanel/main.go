// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "qpanel",
		Short: "Rule-driven housekeeping for qBittorrent fleets",
		Long: `qpanel keeps a fleet of qBittorrent instances tidy: it applies
share and speed limit rules, tags torrents without hard links or with
unregistered trackers, pauses cross-seeded duplicates and reports
orphaned files on disk.`,
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunInstanceCommand())
	rootCmd.AddCommand(RunRuleCommand())
	rootCmd.AddCommand(RunOrphansCommand())
	rootCmd.AddCommand(RunLogsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("qpanel %s\n", version)
			if commit != "" {
				cmd.Printf("commit: %s\n", commit)
			}
			if date != "" {
				cmd.Printf("built: %s\n", date)
			}
			cmd.Printf("go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
