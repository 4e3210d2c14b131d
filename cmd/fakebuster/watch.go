package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/config"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/orchestrator"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <url|file>",
		Short: "Keep scanning a page as it changes",
		Long: `Watch scans a page once and then keeps it under observation.

A local HTML file is rescanned whenever it is written. A remote page is
reloaded every --refresh interval. Changes are debounced, and images that
were already scored are marked again from the earlier verdict instead of
being sent to the detection service a second time.

Examples:
  # Rescan a file on every save and keep an annotated copy
  fakebuster watch --output annotated/ draft.html

  # Reload a page every 10 seconds
  fakebuster watch --refresh 10s https://example.com/feed`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchCmd,
	}

	cmd.Flags().Duration("refresh", config.DefaultRefreshInterval,
		"Reload interval for remote pages")
	cmd.Flags().StringP("output", "o", "",
		"Directory for the annotated copy, rewritten after every pass")

	return cmd
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("refresh") {
		if cfg.RefreshInterval, err = cmd.Flags().GetDuration("refresh"); err != nil {
			return err
		}
	}
	outputDir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	cfg.Targets = args
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
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := newServices(cfg, logger, scorer, store)
	target := args[0]
	orch := svc.newOrchestrator(dom.NewPageSource(newFetcher(cfg), target))
	defer orch.Close()

	return watchPage(ctx, cmd.OutOrStdout(), orch, target, outputDir, cfg.RefreshInterval, logger)
}

// watchPage runs the load pass and then feeds change events into orch
// until ctx ends.
func watchPage(
	ctx context.Context,
	out io.Writer,
	orch *orchestrator.Orchestrator,
	target, outputDir string,
	refresh time.Duration,
	logger *slog.Logger,
) error {
	var mu sync.Mutex
	orch.OnPass(func(pass *model.ScanPass) {
		mu.Lock()
		defer mu.Unlock()

		printPassLine(out, pass)
		if outputDir == "" || pass.Skipped {
			return
		}
		doc, err := orch.Document(ctx)
		if err == nil {
			err = writeAnnotated(outputDir, target, doc)
		}
		if err != nil {
			logger.Error("failed to write annotated page", "page", target, "error", err)
		}
	})

	if _, err := orch.Scan(ctx, model.TriggerLoad); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	if dom.IsRemote(target) {
		return pollRemote(ctx, orch, refresh)
	}
	return watchFile(ctx, orch, dom.LocalPath(target), logger)
}

// pollRemote triggers a mutation pass on every refresh tick.
func pollRemote(ctx context.Context, orch *orchestrator.Orchestrator, refresh time.Duration) error {
	if refresh <= 0 {
		refresh = config.DefaultRefreshInterval
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			orch.Trigger(model.TriggerMutation)
		}
	}
}

// watchFile triggers a mutation pass whenever path is written or replaced.
// The parent directory is watched so that editors which save by renaming
// are noticed too.
func watchFile(ctx context.Context, orch *orchestrator.Orchestrator, path string, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching file", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logger.Debug("file changed", "path", abs, "op", event.Op.String())
				orch.Trigger(model.TriggerMutation)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

// printPassLine writes a one-line summary of pass.
func printPassLine(out io.Writer, pass *model.ScanPass) {
	ts := pass.StartedAt.Local().Format("15:04:05")
	if pass.Skipped {
		fmt.Fprintf(out, "[%s] %s: skipped (detection paused)\n", ts, pass.Trigger)
		return
	}
	counts := pass.CountByClassification()
	fmt.Fprintf(out, "[%s] %s: %d scored (%d fake, %d suspicious, %d real), %d re-marked\n",
		ts, pass.Trigger, len(pass.Results),
		counts[model.ClassificationFake],
		counts[model.ClassificationSuspicious],
		counts[model.ClassificationReal],
		pass.Reannotated,
	)
	for _, e := range pass.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}
