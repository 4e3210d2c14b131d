package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/messaging"
	"github.com/fakebuster/fakebuster/internal/metrics"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/server"
	"github.com/fakebuster/fakebuster/internal/surface"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <url|file>",
		Short: "Serve the message bridge for one page",
		Long: `Serve keeps a page under observation and accepts messages over HTTP, the
way the browser extension's popup and context menu talk to a tab.

POST a JSON message with an "action" field to /v1/messages:

  {"action":"scanPage"}
  {"action":"toggleDetection","enabled":false}
  {"action":"getDetectionCounts"}
  {"action":"detectImage","url":"https://example.com/a.png"}
  {"action":"checkText","text":"...","pageUrl":"https://example.com/"}

Prometheus metrics are served on /metrics and a liveness probe on /healthz.

Examples:
  fakebuster serve https://example.com/gallery
  fakebuster serve --listen 127.0.0.1:9000 page.html`,
		Args: cobra.ExactArgs(1),
		RunE: runServeCmd,
	}

	cmd.Flags().String("listen", "", "Listen address (default 127.0.0.1:7878)")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" { //nolint:errcheck // registered above
		cfg.ListenAddress = listen
	}
	cfg.Targets = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	scorer, err := newDetector(cfg, logger, m)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := newServices(cfg, logger, scorer, store)
	svc.recorder = metrics.InstrumentRecorder(store, m)

	bus := messaging.NewBus(messaging.WithLogger(logger))
	defer bus.Close()

	orch := svc.newOrchestrator(dom.NewPageSource(newFetcher(cfg), args[0]))
	defer orch.Close()

	surface.NewBackground(bus, scorer,
		surface.WithRecorder(svc.recorder),
		surface.WithThresholds(cfg.Thresholds),
		surface.WithBackgroundLogger(logger),
	)
	content := surface.NewContent(bus, orch, store, surface.WithContentLogger(logger))
	go logTooltips(ctx, content.Tooltips(), logger)

	orch.Trigger(model.TriggerLoad)

	srv := server.New(bus,
		server.WithAddr(cfg.ListenAddress),
		server.WithGatherer(reg),
		server.WithLogger(logger),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", args[0], srv.Addr())
	return srv.Run(ctx)
}

// logTooltips reports text verdicts shown on the page.
func logTooltips(ctx context.Context, tips <-chan *annotate.Tooltip, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case tip, ok := <-tips:
			if !ok {
				return
			}
			logger.Info("text verdict shown", "text", tip.Text())
		}
	}
}
