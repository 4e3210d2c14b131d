package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildSetting returns a vcs setting from the embedded build info.
func buildSetting(key string) (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}

// getVersion returns version string.
// Priority: ldflags > debug.ReadBuildInfo > "(devel)"
func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// getCommit returns the short commit hash.
// Priority: ldflags > debug.ReadBuildInfo > "unknown"
func getCommit() string {
	if commit != "" {
		return commit
	}
	if rev, ok := buildSetting("vcs.revision"); ok {
		if len(rev) > 7 {
			return rev[:7]
		}
		return rev
	}
	return "unknown"
}

// getDate returns build date.
// Priority: ldflags > debug.ReadBuildInfo > "unknown"
func getDate() string {
	if date != "" {
		return date
	}
	if t, ok := buildSetting("vcs.time"); ok {
		return t
	}
	return "unknown"
}

// versionInfo is the --json form of the version command.
type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	GoVersion string `json:"goVersion"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of fakebuster.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{
				Version:   getVersion(),
				Commit:    getCommit(),
				Built:     getDate(),
				GoVersion: runtime.Version(),
			}

			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fakebuster version %s\n", info.Version)
			fmt.Fprintf(out, "  commit: %s\n", info.Commit)
			fmt.Fprintf(out, "  built:  %s\n", info.Built)
			fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output version information as JSON")
	return cmd
}
