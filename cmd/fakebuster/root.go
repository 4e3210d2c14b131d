package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for FakeBuster.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fakebuster",
		Short: "Detect AI-generated images and text on web pages",
		Long: `FakeBuster scans web pages for images, asks a detection service how likely
each one is AI-generated and marks the page with the verdict.

Selected text can be checked the same way. Every verdict is recorded in a
local database so that totals and recent history can be shown with
'fakebuster stats'.

The detection service is configured with --api-url, the FAKEBUSTER_API_URL
environment variable (also read from .env) or the .fakebuster config file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	flags := cmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.StringP("config", "c", "",
		"Configuration file path (default: .fakebuster in current or home directory)")
	flags.String("env-file", ".env", "dotenv file with FAKEBUSTER_* variables")
	flags.String("api-url", "", "Detection service base URL")
	flags.String("db-dir", "", "Directory of the history database (default: XDG data dir)")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewToggleCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
