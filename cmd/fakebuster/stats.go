package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/report"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show detection statistics",
		Long: `Stats shows the running totals of the history database: how many images
and texts were checked, how many were judged AI-generated, the fake ratio
and the ten most recent verdicts.

Examples:
  fakebuster stats
  fakebuster stats --markdown --report stats.md
  fakebuster stats --reset`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write statistics to specified file path")
	cmd.Flags().Bool("reset", false,
		"Clear history and counters before showing statistics")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// runStatsCmd executes the stats command.
func runStatsCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	reportFile, err := flags.GetString("report")
	if err != nil {
		return err
	}
	reset, err := flags.GetBool("reset")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if reset {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset statistics: %w", err)
		}
		logger.Info("statistics reset", "db", store.Path())
	}

	stats, err := report.BuildStats(ctx, store)
	if err != nil {
		return err
	}

	return withReportOutput(cmd.OutOrStdout(), reportFile, func(w io.Writer) error {
		_, err := newReportWriter(w, jsonOutput, markdownOutput).WriteStats(stats)
		return err
	})
}
