// Package config provides configuration structures and utilities for FakeBuster.
// It defines the detection service endpoint, classification thresholds,
// scan orchestration timings and the location of persisted state.
package config
