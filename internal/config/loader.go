package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".fakebuster"

// DefaultEnvFile is the dotenv file read for API settings.
const DefaultEnvFile = ".env"

// Environment variables understood by ApplyEnv.
const (
	EnvAPIURL = "FAKEBUSTER_API_URL"
	EnvAPIKey = "FAKEBUSTER_API_KEY"
	EnvDBDir  = "FAKEBUSTER_DB_DIR"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .fakebuster configuration file.
// Zero values mean "keep the default".
type File struct {
	API        APIFile        `yaml:"api,omitempty"`
	Thresholds ThresholdsFile `yaml:"thresholds,omitempty"`
	Scan       ScanFile       `yaml:"scan,omitempty"`
	Detection  DetectionFile  `yaml:"detection,omitempty"`
	Server     ServerFile     `yaml:"server,omitempty"`
}

// APIFile configures the detection service.
type APIFile struct {
	BaseURL   string        `yaml:"baseURL,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	RateLimit int           `yaml:"rateLimit,omitempty"`
}

// ThresholdsFile overrides the classification thresholds.
type ThresholdsFile struct {
	Low  *float64 `yaml:"low,omitempty"`
	High *float64 `yaml:"high,omitempty"`
}

// ScanFile configures candidate selection and orchestration.
type ScanFile struct {
	MinDimension     *int          `yaml:"minDimension,omitempty"`
	IgnorePatterns   []string      `yaml:"ignorePatterns,omitempty"`
	MutationDebounce time.Duration `yaml:"mutationDebounce,omitempty"`
	ScrollDebounce   time.Duration `yaml:"scrollDebounce,omitempty"`
	TooltipDuration  time.Duration `yaml:"tooltipDuration,omitempty"`
	Concurrency      int           `yaml:"concurrency,omitempty"`
	ProbeImages      *bool         `yaml:"probeImages,omitempty"`
	UserAgent        string        `yaml:"userAgent,omitempty"`
	RefreshInterval  time.Duration `yaml:"refreshInterval,omitempty"`
}

// DetectionFile configures the persisted detection toggle.
type DetectionFile struct {
	EnabledByDefault *bool `yaml:"enabledByDefault,omitempty"`
}

// ServerFile configures the message bridge.
type ServerFile struct {
	Listen string `yaml:"listen,omitempty"`
}

// LoadConfigFile loads settings from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .fakebuster in the current directory
// 3. Look for .fakebuster in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// ApplyFile overrides c with the non-zero values of f.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}

	if f.API.BaseURL != "" {
		c.APIBaseURL = f.API.BaseURL
	}
	if f.API.Timeout > 0 {
		c.Timeout = f.API.Timeout
	}
	if f.API.RateLimit > 0 {
		c.RateLimit = f.API.RateLimit
	}

	if f.Thresholds.Low != nil {
		c.Thresholds.Low = *f.Thresholds.Low
	}
	if f.Thresholds.High != nil {
		c.Thresholds.High = *f.Thresholds.High
	}

	if f.Scan.MinDimension != nil {
		c.MinDimension = *f.Scan.MinDimension
	}
	if len(f.Scan.IgnorePatterns) > 0 {
		c.IgnorePatterns = f.Scan.IgnorePatterns
	}
	if f.Scan.MutationDebounce > 0 {
		c.MutationDebounce = f.Scan.MutationDebounce
	}
	if f.Scan.ScrollDebounce > 0 {
		c.ScrollDebounce = f.Scan.ScrollDebounce
	}
	if f.Scan.TooltipDuration > 0 {
		c.TooltipDuration = f.Scan.TooltipDuration
	}
	if f.Scan.Concurrency > 0 {
		c.Concurrency = f.Scan.Concurrency
	}
	if f.Scan.ProbeImages != nil {
		c.ProbeImages = *f.Scan.ProbeImages
	}
	if f.Scan.UserAgent != "" {
		c.UserAgent = f.Scan.UserAgent
	}
	if f.Scan.RefreshInterval > 0 {
		c.RefreshInterval = f.Scan.RefreshInterval
	}

	if f.Detection.EnabledByDefault != nil {
		c.DetectionEnabledDefault = *f.Detection.EnabledByDefault
	}

	if f.Server.Listen != "" {
		c.ListenAddress = f.Server.Listen
	}
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ApplyEnv overrides c with FAKEBUSTER_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBDir)); v != "" {
		c.DBDir = v
	}
}
