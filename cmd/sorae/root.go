package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Sorae CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sorae",
		Short: "Sorae - adaptive multi-factor authentication",
		Long: `Sorae is an adaptive authentication service combining magic links,
behavioral biometrics, risk scoring, and backup code recovery.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewDemoCmd())

	return cmd
}
