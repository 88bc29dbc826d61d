// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cityops/data-api/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a starter config file with documented defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteStarter(args[0]); err != nil {
			return err
		}
		fmt.Printf("starter config written to %s\n", args[0])
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("configuration valid (env=%s, listen=%s)\n", cfg.Env, cfg.ListenAddr)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configValidateCmd)
}
