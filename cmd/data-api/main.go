// SPDX-License-Identifier: MIT

// Command data-api serves the occurrence and analysis-type HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cityops/data-api/internal/log"
)

// set via -ldflags at build time
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "data-api",
	Short:         "HTTP API for urban occurrence records",
	SilenceUsage:  true,
	SilenceErrors: true,
	// running the binary without a subcommand starts the server
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// safe defaults until the config is loaded
		log.Configure(log.Config{
			Level:   "info",
			Service: "data-api",
			Version: version,
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("data-api %s (commit: %s, built: %s)\n", version, commit, buildDate)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd, migrateCmd, configCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
