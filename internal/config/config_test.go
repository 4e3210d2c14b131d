package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changing a default should be intentional, so each one is pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default APIBaseURL is the local prediction server", func(t *testing.T) {
		t.Parallel()
		if cfg.APIBaseURL != "http://127.0.0.1:8000" {
			t.Errorf("expected APIBaseURL to be 'http://127.0.0.1:8000', got '%s'", cfg.APIBaseURL)
		}
	})

	t.Run("default Timeout is 10 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 10*time.Second {
			t.Errorf("expected Timeout to be 10s, got %v", cfg.Timeout)
		}
	})

	t.Run("default thresholds are 0.3 and 0.8", func(t *testing.T) {
		t.Parallel()
		if cfg.Thresholds.Low != 0.3 || cfg.Thresholds.High != 0.8 {
			t.Errorf("expected thresholds 0.3/0.8, got %v/%v", cfg.Thresholds.Low, cfg.Thresholds.High)
		}
	})

	t.Run("default MinDimension is 50", func(t *testing.T) {
		t.Parallel()
		if cfg.MinDimension != 50 {
			t.Errorf("expected MinDimension to be 50, got %d", cfg.MinDimension)
		}
	})

	t.Run("default debounce windows", func(t *testing.T) {
		t.Parallel()
		if cfg.MutationDebounce != 500*time.Millisecond {
			t.Errorf("expected MutationDebounce 500ms, got %v", cfg.MutationDebounce)
		}
		if cfg.ScrollDebounce != time.Second {
			t.Errorf("expected ScrollDebounce 1s, got %v", cfg.ScrollDebounce)
		}
	})

	t.Run("default TooltipDuration is 5 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.TooltipDuration != 5*time.Second {
			t.Errorf("expected TooltipDuration 5s, got %v", cfg.TooltipDuration)
		}
	})

	t.Run("detection is enabled by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.DetectionEnabledDefault {
			t.Error("expected DetectionEnabledDefault to be true")
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case breaks exactly one rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid config", mutate: func(_ *Config) {}},
		{name: "empty api url", mutate: func(c *Config) { c.APIBaseURL = "" }, wantErr: ErrNoAPIBaseURL},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "negative fetch timeout", mutate: func(c *Config) { c.FetchTimeout = -time.Second }, wantErr: ErrInvalidTimeout},
		{name: "low equals high", mutate: func(c *Config) { c.Thresholds.Low = 0.8 }, wantErr: ErrInvalidThresholds},
		{name: "high above one", mutate: func(c *Config) { c.Thresholds.High = 1.5 }, wantErr: ErrInvalidThresholds},
		{name: "negative min dimension", mutate: func(c *Config) { c.MinDimension = -1 }, wantErr: ErrInvalidMinDimension},
		{name: "zero min dimension is valid", mutate: func(c *Config) { c.MinDimension = 0 }},
		{name: "negative scroll debounce", mutate: func(c *Config) { c.ScrollDebounce = -1 }, wantErr: ErrInvalidDebounce},
		{name: "zero debounce is valid", mutate: func(c *Config) { c.MutationDebounce = 0 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: ErrInvalidConcurrency},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: ErrInvalidConcurrency},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit = 0 }, wantErr: ErrInvalidRateLimit},
		{name: "negative body size", mutate: func(c *Config) { c.MaxBodySize = -1 }, wantErr: ErrInvalidMaxBodySize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigValidateTargets(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if err := cfg.ValidateTargets(); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}

	cfg.Targets = []string{"https://example.com"}
	if err := cfg.ValidateTargets(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

// TestLoadConfigFile tests loading the YAML configuration file.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.fakebuster")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".fakebuster")
		content := `api:
  baseURL: "http://detector.internal:9000"
  timeout: 3s
  rateLimit: 2
thresholds:
  low: 0.25
  high: 0.9
scan:
  minDimension: 64
  ignorePatterns:
    - "*.svg"
    - "/ads/*"
  scrollDebounce: 250ms
  probeImages: false
detection:
  enabledByDefault: false
server:
  listen: "0.0.0.0:9999"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		file, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		cfg.ApplyFile(file)

		if cfg.APIBaseURL != "http://detector.internal:9000" {
			t.Errorf("unexpected APIBaseURL %q", cfg.APIBaseURL)
		}
		if cfg.Timeout != 3*time.Second {
			t.Errorf("expected timeout 3s, got %v", cfg.Timeout)
		}
		if cfg.RateLimit != 2 {
			t.Errorf("expected rate limit 2, got %d", cfg.RateLimit)
		}
		if cfg.Thresholds.Low != 0.25 || cfg.Thresholds.High != 0.9 {
			t.Errorf("unexpected thresholds %+v", cfg.Thresholds)
		}
		if cfg.MinDimension != 64 {
			t.Errorf("expected min dimension 64, got %d", cfg.MinDimension)
		}
		if len(cfg.IgnorePatterns) != 2 || cfg.IgnorePatterns[0] != "*.svg" {
			t.Errorf("unexpected ignore patterns %v", cfg.IgnorePatterns)
		}
		if cfg.ScrollDebounce != 250*time.Millisecond {
			t.Errorf("expected scroll debounce 250ms, got %v", cfg.ScrollDebounce)
		}
		if cfg.MutationDebounce != DefaultMutationDebounce {
			t.Errorf("expected untouched mutation debounce, got %v", cfg.MutationDebounce)
		}
		if cfg.ProbeImages {
			t.Error("expected ProbeImages to be disabled")
		}
		if cfg.DetectionEnabledDefault {
			t.Error("expected DetectionEnabledDefault to be disabled")
		}
		if cfg.ListenAddress != "0.0.0.0:9999" {
			t.Errorf("unexpected listen address %q", cfg.ListenAddress)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".fakebuster")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestApplyFileNil(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.ApplyFile(nil)
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("expected defaults to survive a nil file, got %q", cfg.APIBaseURL)
	}
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("api: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

func TestEnv(t *testing.T) {
	t.Run("missing env file is not an error", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("env file feeds ApplyEnv", func(t *testing.T) {
		t.Setenv(EnvAPIURL, "")
		t.Setenv(EnvAPIKey, "")
		t.Setenv(EnvDBDir, "")
		// t.Setenv restores the variables; unset them so godotenv fills them.
		os.Unsetenv(EnvAPIURL)
		os.Unsetenv(EnvAPIKey)
		os.Unsetenv(EnvDBDir)

		envPath := filepath.Join(t.TempDir(), ".env")
		content := "FAKEBUSTER_API_URL=http://10.0.0.2:8000\nFAKEBUSTER_API_KEY=secret-token\n"
		if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}

		if err := LoadEnvFile(envPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		cfg.ApplyEnv()
		if cfg.APIBaseURL != "http://10.0.0.2:8000" {
			t.Errorf("unexpected APIBaseURL %q", cfg.APIBaseURL)
		}
		if cfg.APIKey != "secret-token" {
			t.Errorf("unexpected APIKey %q", cfg.APIKey)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if XDGDataDir() == "" {
		t.Error("expected non-empty XDG data dir")
	}
	if XDGConfigDir() == "" {
		t.Error("expected non-empty XDG config dir")
	}
}
