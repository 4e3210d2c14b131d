package model

import (
	"errors"
	"fmt"
)

// Classification is the three-tier label derived from a detection score.
type Classification string

const (
	// ClassificationReal means the element is likely authentic.
	ClassificationReal Classification = "real"

	// ClassificationSuspicious means the score fell between the two thresholds.
	ClassificationSuspicious Classification = "suspicious"

	// ClassificationFake means the element is likely AI-generated.
	ClassificationFake Classification = "fake"
)

// String returns the lowercase wire form of the classification.
func (c Classification) String() string {
	return string(c)
}

// Title returns the capitalized display form ("Real", "Suspicious", "Fake").
func (c Classification) Title() string {
	switch c {
	case ClassificationReal:
		return "Real"
	case ClassificationSuspicious:
		return "Suspicious"
	case ClassificationFake:
		return "Fake"
	default:
		return "Unknown"
	}
}

// ParseClassification converts the wire form back to a Classification.
func ParseClassification(s string) (Classification, error) {
	switch Classification(s) {
	case ClassificationReal, ClassificationSuspicious, ClassificationFake:
		return Classification(s), nil
	default:
		return "", fmt.Errorf("unknown classification %q", s)
	}
}

// Default thresholds for classification.
const (
	DefaultLowThreshold  = 0.3
	DefaultHighThreshold = 0.8
)

// ErrInvalidThresholds is returned when Low >= High or either bound is outside [0,1].
var ErrInvalidThresholds = errors.New("invalid thresholds: require 0 <= low < high <= 1")

// Thresholds holds the two fixed cut points used by Classify.
type Thresholds struct {
	// Low is the exclusive upper bound for "real".
	Low float64 `yaml:"low" json:"low"`

	// High is the inclusive lower bound for "fake".
	High float64 `yaml:"high" json:"high"`
}

// DefaultThresholds returns the 0.3 / 0.8 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultLowThreshold, High: DefaultHighThreshold}
}

// Validate returns ErrInvalidThresholds unless both cut points lie in [0,1]
// with low < high.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 1 || t.Low >= t.High {
		return ErrInvalidThresholds
	}
	return nil
}

// Classify maps a score to a classification.
// Real when score < Low, Fake when score >= High, Suspicious otherwise.
func (t Thresholds) Classify(score float64) Classification {
	switch {
	case score < t.Low:
		return ClassificationReal
	case score >= t.High:
		return ClassificationFake
	default:
		return ClassificationSuspicious
	}
}

// Classify classifies a score using the default thresholds.
func Classify(score float64) Classification {
	return DefaultThresholds().Classify(score)
}
