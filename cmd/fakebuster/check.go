package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/database"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/messaging"
	"github.com/fakebuster/fakebuster/internal/orchestrator"
	"github.com/fakebuster/fakebuster/internal/surface"
)

// maxCheckInput caps text read from stdin.
const maxCheckInput = 1 << 20

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Check if a piece of text is AI-generated",
		Long: `Check sends text to the detection service and prints the verdict, the way
the "` + surface.CheckTextTitle + `" context menu entry does for a selection.

Without an argument the text is read from standard input, or from the
element matched by --selector on the page given with --page. With --page the
verdict is also shown on the page as a tooltip next to the selection, and
--output writes the annotated page. The verdict is recorded in the history
database.

Examples:
  fakebuster check "The quick brown fox jumps over the lazy dog."
  pbpaste | fakebuster check --page https://example.com/article
  fakebuster check --page article.html --selector "#intro" -o annotated.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheckCmd,
	}

	cmd.Flags().String("page", "", "Page the text was selected on")
	cmd.Flags().StringP("selector", "s", "", "CSS selector of the selected element on --page")
	cmd.Flags().StringP("output", "o", "", "Write the page with the verdict tooltip to this file")
	cmd.Flags().BoolP("json", "j", false, "Output the verdict as JSON")
	cmd.Flags().Bool("no-save", false, "Do not record the verdict")

	return cmd
}

// checkOptions holds the check command flags.
type checkOptions struct {
	page     string
	selector string
	output   string
	asJSON   bool
	noSave   bool
}

func checkFlags(cmd *cobra.Command) (checkOptions, error) {
	var opts checkOptions
	var err error
	flags := cmd.Flags()
	if opts.page, err = flags.GetString("page"); err != nil {
		return opts, err
	}
	if opts.selector, err = flags.GetString("selector"); err != nil {
		return opts, err
	}
	if opts.output, err = flags.GetString("output"); err != nil {
		return opts, err
	}
	if opts.asJSON, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.noSave, err = flags.GetBool("no-save"); err != nil {
		return opts, err
	}
	if opts.page == "" && (opts.selector != "" || opts.output != "") {
		return opts, errors.New("--selector and --output require --page")
	}
	return opts, nil
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	opts, err := checkFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	scorer, err := newDetector(cfg, logger, nil)
	if err != nil {
		return err
	}

	var store *database.Store
	if !opts.noSave {
		if store, err = openStore(cfg); err != nil {
			return err
		}
		defer store.Close()
	}

	bus := messaging.NewBus(messaging.WithLogger(logger))
	defer bus.Close()

	bgOpts := []surface.BackgroundOption{
		surface.WithThresholds(cfg.Thresholds),
		surface.WithBackgroundLogger(logger),
	}
	if store != nil {
		bgOpts = append(bgOpts, surface.WithRecorder(store))
	}
	surface.NewBackground(bus, scorer, bgOpts...)

	var (
		orch    *orchestrator.Orchestrator
		content *surface.Content
	)
	if opts.page != "" {
		svc := newServices(cfg, logger, scorer, store)
		orch = svc.newOrchestrator(dom.NewPageSource(newFetcher(cfg), opts.page))
		defer orch.Close()
		if _, err := orch.Document(ctx); err != nil {
			return fmt.Errorf("failed to load page %s: %w", opts.page, err)
		}

		var contentStore surface.Store
		if store != nil {
			contentStore = store
		}
		content = surface.NewContent(bus, orch, contentStore, surface.WithContentLogger(logger))
	}

	text, err := checkText(ctx, cmd.InOrStdin(), args, orch, opts.selector)
	if err != nil {
		return err
	}

	reply, err := bus.Request(ctx, messaging.CheckText{Text: text, PageURL: opts.page, Selector: opts.selector})
	if err != nil {
		return err
	}
	result, ok := reply.(messaging.TextResult)
	if !ok {
		return fmt.Errorf("unexpected reply %T", reply)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, result.ResultText)
	}

	if !bus.Handles(messaging.ActionShowResult) {
		return nil
	}
	if err := awaitTooltip(ctx, content.Tooltips(), cfg.Timeout); err != nil {
		return err
	}
	logger.Debug("verdict shown on page",
		"page", opts.page,
		"tooltips", orch.Renderer().ActiveTooltips(),
	)
	if opts.output == "" {
		return nil
	}

	doc, err := orch.Document(ctx)
	if err != nil {
		return err
	}
	if err := withReportOutput(out, opts.output, doc.Render); err != nil {
		return fmt.Errorf("failed to write annotated page: %w", err)
	}
	if !opts.asJSON {
		fmt.Fprintf(out, "Annotated page written to %s\n", opts.output)
	}
	return nil
}

// checkText returns the text to score: the argument, the text of the
// element matched by selector, or standard input, in that order.
func checkText(ctx context.Context, stdin io.Reader, args []string, orch *orchestrator.Orchestrator, selector string) (string, error) {
	if len(args) > 0 || selector == "" || orch == nil {
		return checkInput(stdin, args)
	}

	doc, err := orch.Document(ctx)
	if err != nil {
		return "", err
	}
	text := doc.Text(selector)
	if text == "" {
		return "", fmt.Errorf("selector %q matched no text on %s", selector, orch.URL())
	}
	return text, nil
}

// awaitTooltip waits until the content surface has shown the verdict.
func awaitTooltip(ctx context.Context, tips <-chan *annotate.Tooltip, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tips:
		return nil
	case <-timer.C:
		return errors.New("timed out waiting for the verdict to be shown on the page")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkInput returns the text to check from args or r.
func checkInput(r io.Reader, args []string) (string, error) {
	var text string
	if len(args) > 0 {
		text = args[0]
	} else {
		data, err := io.ReadAll(io.LimitReader(r, maxCheckInput))
		if err != nil {
			return "", fmt.Errorf("failed to read text: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("no text to check (pass it as an argument or on stdin)")
	}
	return text, nil
}
