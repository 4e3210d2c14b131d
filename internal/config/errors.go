package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoTarget is returned when a scan is started without any page.
	ErrNoTarget = errors.New("no target specified: provide a page URL or an HTML file path")

	// ErrNoAPIBaseURL is returned when the detection service URL is empty.
	ErrNoAPIBaseURL = errors.New("detection service URL is empty")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidThresholds is returned when low >= high or a bound leaves [0,1].
	ErrInvalidThresholds = errors.New("invalid thresholds: require 0 <= low < high <= 1")

	// ErrInvalidMinDimension is returned when the minimum image size is negative.
	ErrInvalidMinDimension = errors.New("invalid minimum dimension: must be non-negative")

	// ErrInvalidDebounce is returned when a debounce window is negative.
	ErrInvalidDebounce = errors.New("invalid debounce window: must be non-negative")

	// ErrInvalidConcurrency is returned when concurrency or batch size is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRateLimit is returned when the request rate is not positive.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be positive")

	// ErrInvalidMaxBodySize is returned when a size limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
