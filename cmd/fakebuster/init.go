package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/config"
)

//go:embed templates/fakebuster.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new FakeBuster configuration file",
		Long: `Initialize creates a new .fakebuster configuration file in the current directory.

The generated file includes:
- The detection service URL, timeout and rate limit
- Classification thresholds
- Image size, debounce and concurrency settings
- Comments describing every option

Examples:
  # Create .fakebuster in current directory
  fakebuster init

  # Create config file at a specific path
  fakebuster init -o myconfig.yaml

  # Force overwrite existing file
  fakebuster init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/fakebuster.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - The detection service URL")
	fmt.Fprintln(out, "  - Classification thresholds")
	fmt.Fprintln(out, "  - Image size limits and ignore patterns")
	return nil
}
