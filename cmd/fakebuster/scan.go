package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/config"
	"github.com/fakebuster/fakebuster/internal/database"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/orchestrator"
	"github.com/fakebuster/fakebuster/internal/pipeline"
	"github.com/fakebuster/fakebuster/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <url|file>...",
		Short: "Scan web pages for AI-generated images",
		Long: `Scan loads each page, finds the images a visitor would see and asks the
detection service how likely each one is AI-generated.

Images that are hidden, transparent or smaller than the minimum size are
skipped. Every image is scored once per page even if it appears several
times. Verdicts are recorded in the history database unless --no-save is
given.

Examples:
  # Scan a single page
  fakebuster scan https://example.com/gallery

  # Scan a saved HTML file and write the annotated copy
  fakebuster scan --output annotated/ page.html

  # Scan several pages, two at a time, and print a JSON report
  fakebuster scan --batch 2 --json https://a.example https://b.example

  # Write a Markdown report to a file
  fakebuster scan --markdown --report report.md https://example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	// Scan behavior flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of pages scanned concurrently")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of images scored concurrently per page")
	cmd.Flags().Int("min-dimension", config.DefaultMinDimension,
		"Minimum image width and height in pixels")
	cmd.Flags().Bool("no-probe", false,
		"Do not download images to learn their size")
	cmd.Flags().Bool("no-save", false,
		"Do not record verdicts in the history database")
	cmd.Flags().Bool("force", false,
		"Scan even when detection is paused")

	// Output flags
	cmd.Flags().StringP("output", "o", "",
		"Directory for annotated copies of the scanned pages")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// scanOptions are the scan command flags.
type scanOptions struct {
	outputDir  string
	reportFile string
	jsonReport bool
	markdown   bool
	noSave     bool
	force      bool
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildScanConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	return runScan(ctx, cmd.OutOrStdout(), cfg, opts, logger)
}

// buildScanConfig applies the scan flags on top of the loaded configuration.
func buildScanConfig(cmd *cobra.Command, args []string) (*config.Config, scanOptions, error) {
	var opts scanOptions

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("batch") {
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("min-dimension") {
		if cfg.MinDimension, err = flags.GetInt("min-dimension"); err != nil {
			return nil, opts, err
		}
	}
	noProbe, err := flags.GetBool("no-probe")
	if err != nil {
		return nil, opts, err
	}
	if noProbe {
		cfg.ProbeImages = false
	}

	if opts.noSave, err = flags.GetBool("no-save"); err != nil {
		return nil, opts, err
	}
	if opts.force, err = flags.GetBool("force"); err != nil {
		return nil, opts, err
	}
	if opts.outputDir, err = flags.GetString("output"); err != nil {
		return nil, opts, err
	}
	if opts.jsonReport, err = flags.GetBool("json"); err != nil {
		return nil, opts, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, opts, err
	}
	if opts.reportFile, err = flags.GetString("report"); err != nil {
		return nil, opts, err
	}

	cfg.Targets = args
	return cfg, opts, nil
}

// runScan scans every target and writes the report.
func runScan(ctx context.Context, out io.Writer, cfg *config.Config, opts scanOptions, logger *slog.Logger) error {
	if err := cfg.ValidateTargets(); err != nil {
		return err
	}

	scorer, err := newDetector(cfg, logger, nil)
	if err != nil {
		return err
	}

	var store *database.Store
	if !opts.noSave || !opts.force {
		store, err = openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	svc := newServices(cfg, logger, scorer, store)
	if opts.noSave {
		svc.recorder = nil
	}
	var extra []orchestrator.Option
	if opts.force {
		svc.store = nil
		extra = append(extra, orchestrator.WithDetectionDefault(true))
	}
	fetcher := newFetcher(cfg)

	logger.Info("starting scan",
		"targets", len(cfg.Targets),
		"batchSize", cfg.BatchSize,
		"api", cfg.APIBaseURL,
	)
	startTime := time.Now()

	scanPage := func(ctx context.Context, target string) *model.ScanPass {
		return scanOne(ctx, svc, fetcher, target, opts, store, extra, logger)
	}

	var passes []*model.ScanPass
	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		bp := pipeline.NewBatchProcessor(scanPage,
			pipeline.WithConcurrency(cfg.BatchSize),
			pipeline.WithBatchLogger(logger),
		)
		passes, err = bp.ProcessBatch(ctx, cfg.Targets)
	} else {
		passes, err = scanSequential(ctx, cfg.Targets, scanPage)
	}

	logger.Info("scan complete", "elapsed", time.Since(startTime).Round(time.Millisecond))

	if reportErr := writeScanReport(out, opts, passes); reportErr != nil {
		return reportErr
	}
	return err
}

// scanSequential scans targets one at a time.
func scanSequential(ctx context.Context, targets []string, scan pipeline.ScanFunc) ([]*model.ScanPass, error) {
	passes := make([]*model.ScanPass, 0, len(targets))
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return passes, err
		}
		passes = append(passes, scan(ctx, target))
	}
	return passes, nil
}

// scanOne runs a single load pass over target, saves it and writes the
// annotated page.
func scanOne(
	ctx context.Context,
	svc *services,
	fetcher *dom.Fetcher,
	target string,
	opts scanOptions,
	store *database.Store,
	extra []orchestrator.Option,
	logger *slog.Logger,
) *model.ScanPass {
	orch := svc.newOrchestrator(dom.NewPageSource(fetcher, target), extra...)
	defer orch.Close()

	pass, err := orch.Scan(ctx, model.TriggerLoad)
	if err != nil {
		logger.Error("scan failed", "page", target, "error", err)
	}

	if store != nil && !opts.noSave && !pass.Skipped {
		if err := store.SavePass(ctx, pass); err != nil {
			logger.Error("failed to save scan pass", "page", target, "error", err)
			pass.AddError(err)
		}
	}

	if opts.outputDir != "" && err == nil && !pass.Skipped {
		doc, docErr := orch.Document(ctx)
		if docErr == nil {
			docErr = writeAnnotated(opts.outputDir, target, doc)
		}
		if docErr != nil {
			logger.Error("failed to write annotated page", "page", target, "error", docErr)
			pass.AddError(docErr)
		}
	}
	return pass
}

// annotatedFileName derives a stable file name for target's annotated copy.
func annotatedFileName(target string) string {
	var base string
	if dom.IsRemote(target) {
		base = strings.ReplaceAll(report.Domain(target), ".", "_")
	} else {
		base = filepath.Base(dom.LocalPath(target))
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "page"
	}
	sum := sha256.Sum256([]byte(target))
	return fmt.Sprintf("%s-%s.html", base, hex.EncodeToString(sum[:4]))
}

// writeAnnotated renders doc into dir.
func writeAnnotated(dir, target string, doc *dom.Document) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, annotatedFileName(target))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // path derived from output dir
	if err != nil {
		return fmt.Errorf("failed to create annotated file: %w", err)
	}
	defer f.Close()

	if err := doc.Render(f); err != nil {
		return fmt.Errorf("failed to render annotated page: %w", err)
	}
	return nil
}

// writeScanReport outputs the passes in the requested format.
func writeScanReport(out io.Writer, opts scanOptions, passes []*model.ScanPass) error {
	return withReportOutput(out, opts.reportFile, func(w io.Writer) error {
		_, err := newReportWriter(w, opts.jsonReport, opts.markdown).WritePasses(passes)
		return err
	})
}

// newReportWriter picks the writer for the output flags.
func newReportWriter(w io.Writer, jsonReport, markdown bool) report.Writer {
	switch {
	case jsonReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case markdown:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w)
	}
}

// withReportOutput runs write against path, or against out when path is
// empty. Report files are created with owner-only permissions.
func withReportOutput(out io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(out)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided report path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	return write(f)
}
