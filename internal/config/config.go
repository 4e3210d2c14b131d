package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/fakebuster/fakebuster/internal/model"
)

// Default configuration values.
const (
	// DefaultAPIBaseURL is the detection service the browser extension
	// talks to when running next to a local prediction server.
	DefaultAPIBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds every detection call. A hung call resolves to
	// the fallback score once this elapses.
	DefaultTimeout = 10 * time.Second

	// DefaultFetchTimeout bounds loading the page to scan.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMinDimension is the minimum width and height, in pixels, an
	// image must have to be scored.
	DefaultMinDimension = 50

	// DefaultMutationDebounce coalesces bursts of DOM mutations.
	DefaultMutationDebounce = 500 * time.Millisecond

	// DefaultScrollDebounce coalesces scroll events; it matches the delay
	// the content script used.
	DefaultScrollDebounce = 1000 * time.Millisecond

	// DefaultTooltipDuration is how long a text result stays on the page.
	DefaultTooltipDuration = 5 * time.Second

	// DefaultConcurrency is the number of images scored in parallel per pass.
	DefaultConcurrency = 4

	// DefaultBatchSize is the number of pages scanned concurrently.
	DefaultBatchSize = 4

	// DefaultRateLimit is the outbound detection request rate (per second).
	DefaultRateLimit = 8

	// DefaultRefreshInterval is how often watch mode reloads a remote page.
	DefaultRefreshInterval = 30 * time.Second

	// DefaultListenAddress is where the message bridge listens.
	DefaultListenAddress = "127.0.0.1:7878"

	// DefaultUserAgent identifies FakeBuster when it loads pages and images.
	DefaultUserAgent = "FakeBuster/1.0 (+https://github.com/fakebuster/fakebuster)"

	// DefaultMaxBodySize limits the page body read into memory.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultMaxProbeBytes limits how much of an image is downloaded to
	// learn its natural size.
	DefaultMaxProbeBytes = 2 * 1024 * 1024 // 2MB

	// AppName is the application name used for XDG directory paths.
	AppName = "fakebuster"
)

// Config holds all configuration options for FakeBuster.
// It is populated from defaults, the YAML config file, the environment and
// CLI flags, in that order, and passed explicitly to each component.
type Config struct {
	// APIBaseURL is the base URL of the external detection service.
	APIBaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout is the per-request timeout for detection calls.
	Timeout time.Duration

	// FetchTimeout bounds loading a page.
	FetchTimeout time.Duration

	// RateLimit is the maximum number of detection requests per second.
	RateLimit int

	// Thresholds are the classification cut points.
	Thresholds model.Thresholds

	// MinDimension is the minimum image width and height in pixels.
	MinDimension int

	// IgnorePatterns are URL path globs of images that are never scored.
	IgnorePatterns []string

	// MutationDebounce and ScrollDebounce are the per-source debounce windows.
	MutationDebounce time.Duration
	ScrollDebounce   time.Duration

	// TooltipDuration is the display window for text results.
	TooltipDuration time.Duration

	// Concurrency is the number of detection calls in flight per scan pass.
	Concurrency int

	// BatchSize is the number of pages scanned concurrently.
	BatchSize int

	// ProbeImages enables fetching images whose size is not declared in
	// the markup to learn their natural dimensions.
	ProbeImages bool

	// MaxProbeBytes limits image bytes read by the probe.
	MaxProbeBytes int64

	// DetectionEnabledDefault is used until the store has a persisted value.
	DetectionEnabledDefault bool

	// RefreshInterval is how often watch mode reloads remote pages.
	RefreshInterval time.Duration

	// ListenAddress is the host:port of the message bridge.
	ListenAddress string

	// UserAgent is sent when loading pages and images.
	UserAgent string

	// MaxBodySize is the maximum page body size in bytes.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .fakebuster is searched in the current and home directory.
	ConfigFilePath string

	// EnvFilePath is the dotenv file read for API settings.
	EnvFilePath string

	// DBDir is the directory holding the SQLite database.
	DBDir string

	// Targets are the pages (URLs or file paths) to scan.
	Targets []string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		APIBaseURL:              DefaultAPIBaseURL,
		Timeout:                 DefaultTimeout,
		FetchTimeout:            DefaultFetchTimeout,
		RateLimit:               DefaultRateLimit,
		Thresholds:              model.DefaultThresholds(),
		MinDimension:            DefaultMinDimension,
		MutationDebounce:        DefaultMutationDebounce,
		ScrollDebounce:          DefaultScrollDebounce,
		TooltipDuration:         DefaultTooltipDuration,
		Concurrency:             DefaultConcurrency,
		BatchSize:               DefaultBatchSize,
		ProbeImages:             true,
		MaxProbeBytes:           DefaultMaxProbeBytes,
		DetectionEnabledDefault: true,
		RefreshInterval:         DefaultRefreshInterval,
		ListenAddress:           DefaultListenAddress,
		UserAgent:               DefaultUserAgent,
		MaxBodySize:             DefaultMaxBodySize,
		EnvFilePath:             DefaultEnvFile,
		DBDir:                   XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for FakeBuster.
// On Linux: ~/.local/share/fakebuster
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for FakeBuster.
// On Linux: ~/.config/fakebuster
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrNoAPIBaseURL
	}

	if c.Timeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if err := c.Thresholds.Validate(); err != nil {
		return ErrInvalidThresholds
	}

	if c.MinDimension < 0 {
		return ErrInvalidMinDimension
	}

	if c.MutationDebounce < 0 || c.ScrollDebounce < 0 {
		return ErrInvalidDebounce
	}

	if c.Concurrency <= 0 || c.BatchSize <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}

	if c.MaxBodySize < 0 || c.MaxProbeBytes < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// ValidateTargets checks that at least one page was given to scan.
func (c *Config) ValidateTargets() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return nil
}
