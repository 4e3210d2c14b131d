package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter

	printer *message.Printer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}
}

// WriteStats outputs the statistics view.
func (w *MarkdownWriter) WriteStats(stats *Stats) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Fakebuster Statistics")
	md.PlainText("")

	lastChecked := "Never"
	if !stats.LastChecked.IsZero() {
		lastChecked = stats.LastChecked.UTC().Format("2006-01-02 15:04:05 MST")
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Detection", StatusLine(stats.DetectionEnabled)},
			{"Last Checked", lastChecked},
			{"Total Detections", w.printer.Sprintf("%d", stats.TotalScans)},
			{"Fake Images", w.printer.Sprintf("%d", stats.FakeImageCount)},
			{"Fake Texts", w.printer.Sprintf("%d", stats.FakeTextCount)},
			{"Fake Ratio", strconv.Itoa(stats.FakeRatio) + "%"},
		},
	})
	md.PlainText("")

	if stats.TotalScans > 0 {
		w.writePieChart(md, stats)
	}
	w.writeAlert(md, stats)

	md.H2("Recent Scans")
	md.PlainText("")
	if len(stats.Recent) == 0 {
		md.PlainText("No scan history available.")
	} else {
		rows := make([][]string, len(stats.Recent))
		for i, e := range stats.Recent {
			rows[i] = []string{
				e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				e.Domain,
				string(e.MediaType),
				e.Status,
				confidence(e.Confidence),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Date", "Domain", "Media", "Status", "Confidence"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, stats *Stats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Verdict Distribution"),
		piechart.WithShowData(true),
	)

	other := stats.TotalScans - stats.FakeImageCount - stats.FakeTextCount
	if stats.FakeImageCount > 0 {
		chart.LabelAndIntValue("Fake images", uint64(stats.FakeImageCount))
	}
	if stats.FakeTextCount > 0 {
		chart.LabelAndIntValue("Fake texts", uint64(stats.FakeTextCount))
	}
	if other > 0 {
		chart.LabelAndIntValue("Real or suspicious", uint64(other))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, stats *Stats) {
	switch {
	case stats.TotalScans == 0:
		md.Tip("Nothing scanned yet.")
	case stats.FakeRatio >= 50:
		md.Warningf("%d%% of scanned content looked AI-generated.", stats.FakeRatio)
	case stats.FakeImageCount+stats.FakeTextCount > 0:
		md.Notef("%d%% of scanned content looked AI-generated.", stats.FakeRatio)
	default:
		md.Tip("No AI-generated content detected.")
	}
	md.PlainText("")
}

// WritePasses outputs a table per scanned page.
func (w *MarkdownWriter) WritePasses(passes []*model.ScanPass) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Fakebuster Scan Report")
	md.PlainText("")

	for _, pass := range nonNil(passes) {
		md.H2(pass.PageURL)
		md.PlainText("")

		if pass.Skipped {
			md.Note("Skipped: detection is paused.")
			md.PlainText("")
			continue
		}

		if len(pass.Results) == 0 {
			md.PlainText("No new images scored.")
		} else {
			rows := make([][]string, len(pass.Results))
			for i, r := range pass.Results {
				label := r.Result.Label
				if r.Result.Fallback {
					label = "detector unavailable"
				}
				if label == "" {
					label = "-"
				}
				rows[i] = []string{
					annotate.Style(r.Classification).Icon + " " + r.Classification.Title(),
					strconv.Itoa(r.Result.Percent()) + "%",
					"`" + truncateString(r.Target.URL, 80) + "`",
					label,
				}
			}
			md.Table(markdown.TableSet{
				Header: []string{"Verdict", "Score", "Image", "Note"},
				Rows:   rows,
			})
		}
		md.PlainText("")

		if len(pass.Errors) > 0 {
			md.H3("Errors")
			md.BulletList(pass.Errors...)
			md.PlainText("")
		}
	}

	md.HorizontalRule()
	return len(md.String()), md.Build()
}
