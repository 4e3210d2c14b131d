package report

import (
	"io"

	"github.com/fakebuster/fakebuster/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// WriteStats outputs the statistics view.
	WriteStats(stats *Stats) (int, error)

	// WritePasses outputs the results of one or more scan passes.
	WritePasses(passes []*model.ScanPass) (int, error)
}

// MultiWriter writes to multiple Writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteStats writes the stats to every Writer, stopping at the first error.
func (m *MultiWriter) WriteStats(stats *Stats) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteStats(stats)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WritePasses writes the passes to every Writer, stopping at the first error.
func (m *MultiWriter) WritePasses(passes []*model.ScanPass) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePasses(passes)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// nonNil drops nil passes left by cancelled batch scans.
func nonNil(passes []*model.ScanPass) []*model.ScanPass {
	out := make([]*model.ScanPass, 0, len(passes))
	for _, p := range passes {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// rejectedSummary formats rejection counts in a stable order.
func rejectedSummary(rejected map[string]int) []string {
	order := []string{
		"no_source", "already_processed", "ignored_pattern", "unrendered_subtree",
		"display_none", "visibility_hidden", "opacity_zero", "no_rendered_box", "too_small",
	}
	parts := make([]string, 0, len(rejected))
	seen := make(map[string]bool, len(order))
	for _, reason := range order {
		seen[reason] = true
		if n := rejected[reason]; n > 0 {
			parts = append(parts, reason+"="+itoa(n))
		}
	}
	for reason, n := range rejected {
		if !seen[reason] && n > 0 {
			parts = append(parts, reason+"="+itoa(n))
		}
	}
	return parts
}
