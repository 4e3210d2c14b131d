package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/config"
	"github.com/fakebuster/fakebuster/internal/database"
	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/filter"
	"github.com/fakebuster/fakebuster/internal/log"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/orchestrator"
	"github.com/fakebuster/fakebuster/internal/pipeline"
	"github.com/fakebuster/fakebuster/internal/probe"
)

// loadConfig builds the configuration from defaults, the config file, the
// environment and the persistent flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.EnvFilePath, err = flags.GetString("env-file"); err != nil {
		return nil, err
	}
	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// Otherwise a missing file just leaves the defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := config.LoadEnvFile(cfg.EnvFilePath); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", cfg.EnvFilePath, err)
	}
	cfg.ApplyEnv()

	if apiURL, _ := flags.GetString("api-url"); apiURL != "" { //nolint:errcheck // registered on root
		cfg.APIBaseURL = apiURL
	}
	if dbDir, _ := flags.GetString("db-dir"); dbDir != "" { //nolint:errcheck // registered on root
		cfg.DBDir = dbDir
	}

	return cfg, nil
}

// newLogger creates the sanitizing logger for a command and makes it the
// process default.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := log.New(cmd.ErrOrStderr(), log.Options{
		Verbose: cfg.Verbose,
		JSON:    cfg.LogJSON,
	})
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openStore opens the history database in cfg.DBDir, creating it if needed.
func openStore(cfg *config.Config) (*database.Store, error) {
	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// newDetector creates the detection service client.
func newDetector(cfg *config.Config, logger *slog.Logger, observer detect.Observer) (*detect.Client, error) {
	opts := []detect.Option{
		detect.WithTimeout(cfg.Timeout),
		detect.WithRateLimit(cfg.RateLimit),
		detect.WithLogger(logger),
	}
	if cfg.APIKey != "" {
		opts = append(opts, detect.WithAPIKey(cfg.APIKey))
	}
	if observer != nil {
		opts = append(opts, detect.WithObserver(observer))
	}

	client, err := detect.NewClient(cfg.APIBaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return client, nil
}

// newFetcher creates the page loader.
func newFetcher(cfg *config.Config) *dom.Fetcher {
	return dom.NewFetcher(
		dom.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		dom.WithUserAgent(cfg.UserAgent),
		dom.WithMaxBodySize(cfg.MaxBodySize),
	)
}

// services are the shared collaborators of every orchestrator a command
// creates.
type services struct {
	cfg      *config.Config
	logger   *slog.Logger
	scorer   detect.Scorer
	store    *database.Store
	recorder pipeline.Recorder
	prober   *probe.Prober
}

// newServices wires the collaborators. recorder defaults to the store.
func newServices(cfg *config.Config, logger *slog.Logger, scorer detect.Scorer, store *database.Store) *services {
	s := &services{
		cfg:    cfg,
		logger: logger,
		scorer: scorer,
		store:  store,
	}
	if store != nil {
		s.recorder = store
	}
	if cfg.ProbeImages {
		s.prober = probe.New(
			probe.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
			probe.WithMaxBytes(cfg.MaxProbeBytes),
			probe.WithUserAgent(cfg.UserAgent),
			probe.WithLogger(logger),
		)
	}
	return s
}

// newOrchestrator creates an orchestrator for one page.
func (s *services) newOrchestrator(source dom.Source, extra ...orchestrator.Option) *orchestrator.Orchestrator {
	cfg := s.cfg
	opts := []orchestrator.Option{
		orchestrator.WithLogger(s.logger),
		orchestrator.WithThresholds(cfg.Thresholds),
		orchestrator.WithConcurrency(cfg.Concurrency),
		orchestrator.WithDebounce(model.TriggerMutation, cfg.MutationDebounce),
		orchestrator.WithDebounce(model.TriggerScroll, cfg.ScrollDebounce),
		orchestrator.WithDetectionDefault(cfg.DetectionEnabledDefault),
		orchestrator.WithFilter(filter.New(
			filter.WithMinDimension(cfg.MinDimension),
			filter.WithIgnorePatterns(cfg.IgnorePatterns),
		)),
		orchestrator.WithRenderer(annotate.NewRenderer(
			annotate.WithThresholds(cfg.Thresholds),
			annotate.WithTooltipDuration(cfg.TooltipDuration),
			annotate.WithLogger(s.logger),
		)),
	}
	if s.store != nil {
		opts = append(opts, orchestrator.WithSettings(s.store))
	}
	if s.recorder != nil {
		opts = append(opts, orchestrator.WithRecorder(s.recorder))
	}
	if s.prober != nil {
		opts = append(opts, orchestrator.WithProber(s.prober))
	}
	opts = append(opts, extra...)

	return orchestrator.New(source, s.scorer, opts...)
}
