package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fakebuster/fakebuster/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// TestNewInitCmd tests the init command creation.
func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	t.Run("has output flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("expected output flag")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
		}
		if flag.DefValue != config.DefaultConfigFile {
			t.Errorf("expected default %q, got %q", config.DefaultConfigFile, flag.DefValue)
		}
	})

	t.Run("has force flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("force")
		if flag == nil {
			t.Fatal("expected force flag")
		}
		if flag.Shorthand != "f" {
			t.Errorf("expected shorthand 'f', got %q", flag.Shorthand)
		}
	})
}

// TestRunInitCmd tests the init command execution.
func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates config file", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".fakebuster")

		var out bytes.Buffer
		cmd := NewInitCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"-o", outputPath})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if !strings.Contains(string(content), "thresholds:") {
			t.Error("expected config to contain 'thresholds:'")
		}
		if !strings.Contains(out.String(), outputPath) {
			t.Errorf("expected output to name the file, got %q", out.String())
		}
	})

	t.Run("fails if file exists without force", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".fakebuster")
		writeFile(t, outputPath, "existing")

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", outputPath})

		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected 'already exists' error, got %v", err)
		}
	})

	t.Run("overwrites file with force flag", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".fakebuster")
		writeFile(t, outputPath, "existing")

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", outputPath, "-f"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(content) == "existing" {
			t.Error("expected file to be overwritten")
		}
	})

	t.Run("creates parent directories with owner-only permissions", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), "subdir", "nested", ".fakebuster")

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", outputPath})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			t.Fatalf("expected config file to be created: %v", err)
		}
		if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
			t.Errorf("expected permissions 0600, got %o", info.Mode().Perm())
		}
	})
}

// TestConfigTemplate checks that the embedded template loads and
// reproduces the defaults.
func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	content, err := configTemplate.ReadFile("templates/fakebuster.yaml")
	if err != nil {
		t.Fatalf("failed to read template: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".fakebuster")
	writeFile(t, path, string(content))

	file, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("template is not valid YAML: %v", err)
	}

	cfg := config.NewConfig()
	cfg.ApplyFile(file)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("template config invalid: %v", err)
	}

	defaults := config.NewConfig()
	if cfg.APIBaseURL != defaults.APIBaseURL ||
		cfg.Timeout != defaults.Timeout ||
		cfg.Thresholds != defaults.Thresholds ||
		cfg.MinDimension != defaults.MinDimension ||
		cfg.ScrollDebounce != defaults.ScrollDebounce ||
		cfg.ListenAddress != defaults.ListenAddress {
		t.Errorf("template drifted from defaults: %+v", cfg)
	}
}
