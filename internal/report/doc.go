// Package report renders detection statistics and scan pass results.
//
// Three formats are provided behind the Writer interface:
//   - Simple: aligned plain text for terminals
//   - Markdown: tables and a mermaid pie chart for sharing
//   - JSON: machine-readable output for other tools
//
// All writers render the same Stats view model, so reloading the store
// always shows identical numbers whatever the format.
package report
