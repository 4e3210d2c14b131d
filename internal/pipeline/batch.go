package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fakebuster/fakebuster/internal/model"
)

// ScanFunc runs one full pass over target and returns its record.
// Failures are reported inside the pass.
type ScanFunc func(ctx context.Context, target string) *model.ScanPass

// BatchProcessor scans several pages concurrently. Each page keeps its own
// processed set, so a resource shared by two pages is scored once per page.
type BatchProcessor struct {
	scan        ScanFunc
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of pages scanned at once.
// Default is 4.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(scan ScanFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		scan:        scan,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch scans every target and returns the passes in input order.
// Targets not started before ctx ends have a nil entry.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.ScanPass, error) {
	bp.logger.Info("starting batch scan",
		"total_pages", len(targets),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	passes := make([]*model.ScanPass, len(targets))
	err := bp.ProcessBatchWithCallback(ctx, targets, func(pass *model.ScanPass, index int) {
		passes[index] = pass
	})

	bp.logger.Info("batch scan complete",
		"total_pages", len(targets),
		"elapsed", time.Since(start),
	)
	return passes, err
}

// ProcessBatchWithCallback scans every target and calls callback as each
// pass completes. callback runs on the scanning goroutine.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(pass *model.ScanPass, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("scanning page",
				"page", target,
				"index", i+1,
				"total", len(targets),
			)

			pass := bp.scan(ctx, target)
			if len(pass.Errors) > 0 {
				bp.logger.Warn("scan finished with errors",
					"page", target,
					"errors", len(pass.Errors),
				)
			}
			callback(pass, i)
			return nil
		})
	}

	return g.Wait()
}
