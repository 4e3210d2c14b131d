package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/report"
)

// NewToggleCmd creates the toggle command.
func NewToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle on|off|status",
		Short: "Pause or resume detection",
		Long: `Toggle switches automatic detection on or off. While detection is paused,
scan and watch passes are skipped and nothing is sent to the detection
service. The setting is stored in the history database and shared by every
command.

Examples:
  fakebuster toggle off
  fakebuster toggle status`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "status"},
		RunE:      runToggleCmd,
	}
}

// runToggleCmd executes the toggle command.
func runToggleCmd(cmd *cobra.Command, args []string) error {
	var (
		set     bool
		enabled bool
	)
	switch args[0] {
	case "on":
		set, enabled = true, true
	case "off":
		set, enabled = true, false
	case "status":
	default:
		return fmt.Errorf("invalid argument %q: expected on, off or status", args[0])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cmd, cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if set {
		if err := store.SetDetectionEnabled(ctx, enabled); err != nil {
			return fmt.Errorf("failed to save detection toggle: %w", err)
		}
	}

	enabled, err = store.DetectionEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read detection toggle: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.StatusLine(enabled))
	return nil
}
