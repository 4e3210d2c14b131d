package report

import (
	"encoding/json"
	"io"

	"github.com/fakebuster/fakebuster/internal/model"
)

// JSONWriter outputs reports in JSON format.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion adds the program version to pass reports.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteStats outputs the statistics view.
func (w *JSONWriter) WriteStats(stats *Stats) (int, error) {
	return w.writeJSON(stats)
}

// PassReport wraps scan passes with the producing version.
type PassReport struct {
	Version string            `json:"version,omitempty"`
	Passes  []*model.ScanPass `json:"passes"`
}

// WritePasses outputs the passes wrapped in a PassReport.
func (w *JSONWriter) WritePasses(passes []*model.ScanPass) (int, error) {
	return w.writeJSON(PassReport{Version: w.version, Passes: nonNil(passes)})
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
