package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text for terminals.
type SimpleWriter struct {
	baseWriter

	printer *message.Printer
	now     func() time.Time
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose adds rejection and error details to pass output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithLanguage sets the locale used for number formatting.
func WithLanguage(tag language.Tag) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.printer = message.NewPrinter(tag)
	}
}

// WithClock sets the reference time for relative timestamps.
func WithClock(now func() time.Time) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.now = now
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteStats outputs the statistics view.
func (w *SimpleWriter) WriteStats(stats *Stats) (int, error) {
	var sb strings.Builder

	w.writeBanner(&sb, "FAKEBUSTER STATISTICS")

	fmt.Fprintf(&sb, "Detection:      %s\n", StatusLine(stats.DetectionEnabled))
	fmt.Fprintf(&sb, "Last Checked:   %s\n\n", w.when(stats.LastChecked))

	w.writeSection(&sb, "TOTALS")
	sb.WriteString(w.printer.Sprintf("  Total Detections:  %d\n", stats.TotalScans))
	sb.WriteString(w.printer.Sprintf("  Fake Images:       %d\n", stats.FakeImageCount))
	sb.WriteString(w.printer.Sprintf("  Fake Texts:        %d\n", stats.FakeTextCount))
	fmt.Fprintf(&sb, "  Fake Ratio:        %d%%\n\n", stats.FakeRatio)

	w.writeSection(&sb, "RECENT SCANS")
	if len(stats.Recent) == 0 {
		sb.WriteString("  No scan history available\n\n")
	} else {
		for _, e := range stats.Recent {
			fmt.Fprintf(&sb, "  %-16s  %-28s  %-10s  %4s  %s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04"),
				truncateString(e.Domain, 28),
				e.Status,
				confidence(e.Confidence),
				humanize.RelTime(e.Timestamp, w.now(), "ago", "from now"),
			)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// WritePasses outputs every scored element of each pass.
func (w *SimpleWriter) WritePasses(passes []*model.ScanPass) (int, error) {
	var sb strings.Builder

	w.writeBanner(&sb, "FAKEBUSTER SCAN REPORT")

	for _, pass := range nonNil(passes) {
		w.writeSection(&sb, pass.PageURL)

		if pass.Skipped {
			sb.WriteString("  Skipped: detection is paused\n\n")
			continue
		}

		counts := pass.CountByClassification()
		fmt.Fprintf(&sb, "  Trigger: %s   Candidates: %d   Scored: %d   Re-marked: %d\n",
			pass.Trigger, len(pass.Candidates), len(pass.Results), pass.Reannotated)
		fmt.Fprintf(&sb, "  Fake: %d   Suspicious: %d   Real: %d\n\n",
			counts[model.ClassificationFake],
			counts[model.ClassificationSuspicious],
			counts[model.ClassificationReal])

		for _, r := range pass.Results {
			badge := annotate.Style(r.Classification)
			line := fmt.Sprintf("  %s %-10s %4d%%  %s", badge.Icon, r.Classification.Title(), r.Result.Percent(), r.Target.URL)
			if r.Result.Label != "" {
				line += "  (" + r.Result.Label + ")"
			}
			if r.Result.Fallback {
				line += "  [detector unavailable]"
			}
			sb.WriteString(line + "\n")
		}
		if len(pass.Results) == 0 {
			sb.WriteString("  No new images scored\n")
		}

		if w.verbose {
			if parts := rejectedSummary(pass.Rejected); len(parts) > 0 {
				fmt.Fprintf(&sb, "  Rejected: %s\n", strings.Join(parts, " "))
			}
		}
		for _, e := range pass.Errors {
			fmt.Fprintf(&sb, "  Error: %s\n", e)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	pad := max(0, (ruleWidth-len(title))/2)
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) when(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Local().Format("2006-01-02 15:04:05 MST") + " (" + humanize.RelTime(t, w.now(), "ago", "from now") + ")"
}

func confidence(percent int) string {
	if percent <= 0 {
		return "N/A"
	}
	return strconv.Itoa(percent) + "%"
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
