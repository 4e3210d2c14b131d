package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/database"
	"github.com/fakebuster/fakebuster/internal/model"
)

// Verdict change kinds.
const (
	changeNew       = "new"
	changeGone      = "gone"
	changeWorsened  = "worsened"
	changeImproved  = "improved"
	changeUnchanged = "unchanged"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <url|file>",
		Short: "Compare the latest two scans of a page",
		Long: `Compare shows how the verdicts of a page changed between its two most
recent saved scans:
- Images scored for the first time
- Images that are no longer on the page
- Images whose classification changed

Use 'fakebuster scan' to scan pages; each scan is saved automatically.

Examples:
  # Compare the latest two scans
  fakebuster compare https://example.com/gallery

  # List saved scans of a page
  fakebuster compare --list https://example.com/gallery

  # List every saved scan
  fakebuster compare --list-pages`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List saved scans of the specified page")
	cmd.Flags().BoolP("list-pages", "L", false,
		"List saved scans of every page")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// VerdictChange describes one image across two scans.
type VerdictChange struct {
	URL      string               `json:"url"`
	Change   string               `json:"change"`
	Previous model.Classification `json:"previous,omitempty"`
	Current  model.Classification `json:"current,omitempty"`
	Score    float64              `json:"score"`
}

// ComparisonResult is the outcome of comparing two passes.
type ComparisonResult struct {
	PageURL  string          `json:"pageUrl"`
	Previous *model.ScanPass `json:"-"`
	Current  *model.ScanPass `json:"-"`
	Changes  []VerdictChange `json:"changes"`
	Counts   map[string]int  `json:"counts"`
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	listPages, err := flags.GetBool("list-pages")
	if err != nil {
		return err
	}

	// Validate arguments before opening database
	var pageURL string
	if !listPages {
		if len(args) == 0 {
			return errors.New("page is required (use --list-pages to see saved scans)")
		}
		pageURL = args[0]
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cmd, cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if listPages {
		return listPasses(ctx, out, store, "")
	}
	listHistory, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listPasses(ctx, out, store, pageURL)
	}

	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}

	passes, err := store.RecentPasses(ctx, pageURL, 2)
	if err != nil {
		return err
	}
	if len(passes) < 2 {
		return fmt.Errorf("need at least two saved scans of %s, found %d", pageURL, len(passes))
	}

	result := comparePasses(passes[1], passes[0])
	switch {
	case jsonOutput:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// listPasses prints saved pass summaries, newest first.
func listPasses(ctx context.Context, out io.Writer, store *database.Store, pageURL string) error {
	summaries, err := store.PassHistory(ctx, pageURL)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No saved scans.")
		return nil
	}

	for _, s := range summaries {
		fmt.Fprintf(out, "%4d  %s  %-8s  %s  %s\n",
			s.ID,
			s.Timestamp.Local().Format("2006-01-02 15:04:05"),
			s.Trigger,
			formatCounts(s.Counts),
			s.PageURL,
		)
	}
	return nil
}

// formatCounts renders classification counts in a fixed order.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "no images scored"
	}
	parts := make([]string, 0, 3)
	for _, c := range []model.Classification{model.ClassificationFake, model.ClassificationSuspicious, model.ClassificationReal} {
		if n := counts[string(c)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	return strings.Join(parts, " ")
}

// severity orders classifications from least to most concerning.
func severity(c model.Classification) int {
	switch c {
	case model.ClassificationFake:
		return 2
	case model.ClassificationSuspicious:
		return 1
	default:
		return 0
	}
}

// comparePasses diffs the scored images of two passes by image URL.
func comparePasses(previous, current *model.ScanPass) *ComparisonResult {
	before := make(map[string]model.ScoredTarget, len(previous.Results))
	for _, r := range previous.Results {
		before[r.Target.URL] = r
	}
	after := make(map[string]model.ScoredTarget, len(current.Results))
	for _, r := range current.Results {
		after[r.Target.URL] = r
	}

	result := &ComparisonResult{
		PageURL:  current.PageURL,
		Previous: previous,
		Current:  current,
		Counts:   make(map[string]int),
	}
	add := func(c VerdictChange) {
		result.Changes = append(result.Changes, c)
		result.Counts[c.Change]++
	}

	for url, cur := range after {
		prev, ok := before[url]
		if !ok {
			add(VerdictChange{URL: url, Change: changeNew, Current: cur.Classification, Score: cur.Result.Score})
			continue
		}
		change := changeUnchanged
		switch d := severity(cur.Classification) - severity(prev.Classification); {
		case d > 0:
			change = changeWorsened
		case d < 0:
			change = changeImproved
		}
		add(VerdictChange{URL: url, Change: change, Previous: prev.Classification, Current: cur.Classification, Score: cur.Result.Score})
	}
	for url, prev := range before {
		if _, ok := after[url]; !ok {
			add(VerdictChange{URL: url, Change: changeGone, Previous: prev.Classification, Score: prev.Result.Score})
		}
	}

	slices.SortFunc(result.Changes, func(a, b VerdictChange) int {
		if c := strings.Compare(a.Change, b.Change); c != 0 {
			return c
		}
		return strings.Compare(a.URL, b.URL)
	})
	return result
}

// outputComparisonText prints the comparison for terminals.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Comparison for %s\n", result.PageURL)
	fmt.Fprintf(&sb, "  previous: %s (%s)\n", result.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Previous.Trigger)
	fmt.Fprintf(&sb, "  current:  %s (%s)\n\n", result.Current.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Current.Trigger)

	if len(result.Changes) == 0 {
		sb.WriteString("No images scored in either scan.\n")
	}
	for _, c := range result.Changes {
		if c.Change == changeUnchanged {
			continue
		}
		fmt.Fprintf(&sb, "  %-9s %s  %s\n", c.Change, formatTransition(c), c.URL)
	}
	fmt.Fprintf(&sb, "\n%d new, %d gone, %d worsened, %d improved, %d unchanged\n",
		result.Counts[changeNew], result.Counts[changeGone],
		result.Counts[changeWorsened], result.Counts[changeImproved],
		result.Counts[changeUnchanged])

	_, err := io.WriteString(out, sb.String())
	return err
}

// outputComparisonMarkdown prints the comparison as Markdown.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1("Scan Comparison")
	md.PlainText("")
	md.PlainTextf("Page: `%s`", result.PageURL)
	md.PlainText("")

	rows := make([][]string, 0, len(result.Changes))
	for _, c := range result.Changes {
		if c.Change == changeUnchanged {
			continue
		}
		rows = append(rows, []string{c.Change, formatTransition(c), "`" + c.URL + "`"})
	}
	if len(rows) == 0 {
		md.Tip("No verdict changes between the two scans.")
	} else {
		md.Table(markdown.TableSet{
			Header: []string{"Change", "Verdict", "Image"},
			Rows:   rows,
		})
	}
	md.PlainText("")
	if result.Counts[changeWorsened] > 0 {
		md.Warningf("%d image(s) now look more likely AI-generated.", result.Counts[changeWorsened])
		md.PlainText("")
	}
	return md.Build()
}

// formatTransition renders "previous -> current" for a change.
func formatTransition(c VerdictChange) string {
	prev, cur := "-", "-"
	if c.Previous != "" {
		prev = c.Previous.Title()
	}
	if c.Current != "" {
		cur = c.Current.Title()
	}
	return prev + " -> " + cur
}
