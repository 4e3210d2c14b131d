package filter

import (
	"net/url"
	"path"
	"strings"

	"github.com/fakebuster/fakebuster/internal/model"
)

// DefaultMinDimension is the minimum width and height, in pixels.
const DefaultMinDimension = 50

// Reason explains why a target was rejected. The empty Reason means eligible.
type Reason string

// Rejection reasons, in the order they are checked.
const (
	ReasonEligible    Reason = ""
	ReasonNoSource    Reason = "no_source"
	ReasonProcessed   Reason = "already_processed"
	ReasonIgnored     Reason = "ignored_pattern"
	ReasonHidden      Reason = "unrendered_subtree"
	ReasonDisplayNone Reason = "display_none"
	ReasonInvisible   Reason = "visibility_hidden"
	ReasonTransparent Reason = "opacity_zero"
	ReasonNoBox       Reason = "no_rendered_box"
	ReasonTooSmall    Reason = "too_small"
)

// Filter applies the eligibility rules.
type Filter struct {
	minDimension   float64
	ignorePatterns []string
}

// Option configures a Filter.
type Option func(*Filter)

// WithMinDimension sets the minimum width and height.
func WithMinDimension(px int) Option {
	return func(f *Filter) {
		if px >= 0 {
			f.minDimension = float64(px)
		}
	}
}

// WithIgnorePatterns skips images whose URL path matches any glob pattern
// (e.g. "*.svg", "/ads/*").
func WithIgnorePatterns(patterns []string) Option {
	return func(f *Filter) {
		f.ignorePatterns = patterns
	}
}

// New creates a Filter.
func New(opts ...Option) *Filter {
	f := &Filter{minDimension: DefaultMinDimension}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Reason returns why t is not eligible, or ReasonEligible.
// processed may be nil.
func (f *Filter) Reason(t model.ScanTarget, processed *ProcessedSet) Reason {
	switch {
	case t.Key.Empty():
		return ReasonNoSource
	case processed != nil && processed.Has(t.Key):
		return ReasonProcessed
	case f.ignored(t.URL):
		return ReasonIgnored
	case t.Hidden:
		return ReasonHidden
	case strings.EqualFold(t.Display, "none"):
		return ReasonDisplayNone
	case strings.EqualFold(t.Visibility, "hidden"):
		return ReasonInvisible
	case t.Opacity <= 0:
		return ReasonTransparent
	case t.RenderedBox().Empty():
		return ReasonNoBox
	}

	w, h := t.Dimensions()
	if w < f.minDimension || h < f.minDimension {
		return ReasonTooSmall
	}
	return ReasonEligible
}

// Eligible returns the targets that pass every rule, in input order.
// It does not modify processed.
func (f *Filter) Eligible(targets []model.ScanTarget, processed *ProcessedSet) []model.ScanTarget {
	out := make([]model.ScanTarget, 0, len(targets))
	for _, t := range targets {
		if f.Reason(t, processed) == ReasonEligible {
			out = append(out, t)
		}
	}
	return out
}

// Eligible applies the default rules.
func Eligible(targets []model.ScanTarget, processed *ProcessedSet) []model.ScanTarget {
	return New().Eligible(targets, processed)
}

func (f *Filter) ignored(raw string) bool {
	if len(f.ignorePatterns) == 0 {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	urlPath := u.Path
	if urlPath == "" {
		urlPath = "/"
	}
	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//   - "/ads/*" matches "/ads/banner.png" and "/ads/x/y.png"
//   - "*.svg" matches any path ending in .svg
//   - other patterns use path.Match, also tried against the file name
func matchPattern(pattern, urlPath string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(urlPath, prefix+"/") || urlPath == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(strings.ToLower(urlPath), strings.ToLower(strings.TrimPrefix(pattern, "*"))) {
			return true
		}
	}

	if matched, err := path.Match(pattern, urlPath); err == nil && matched {
		return true
	}

	// Globs without a directory part match the file name anywhere.
	if strings.ContainsAny(pattern, "*?[") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(urlPath)); err == nil && matched {
			return true
		}
	}
	return false
}
