// Package main implements the tenantobs CLI: build the sensor dataset and
// report, export, snapshot or serve its aggregates.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/config"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/ingest"
	"github.com/nicktill/tenantobs/pkg/logging"
	"github.com/nicktill/tenantobs/pkg/server"
	"github.com/nicktill/tenantobs/pkg/storage"
	"github.com/nicktill/tenantobs/pkg/telemetry"
)

var (
	configPath   string
	dirFlag      string
	cutoffFlag   string
	logLevel     string
	fromSnapshot bool

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tenantobs",
	Short: "Sensor log ingestion, classification and aggregation",
	Long: `tenantobs loads per-tenant sensor logs, classifies every record into a
sensor category and computes temporal aggregates, correlations, coverage
and field inventories over the resulting dataset.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "directory holding the source CSV files (overrides dataset.dir)")
	rootCmd.PersistentFlags().StringVar(&cutoffFlag, "cutoff", "", "only records strictly after this date, YYYY-MM-DD (overrides dataset.cutoff)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	rootCmd.PersistentFlags().BoolVar(&fromSnapshot, "snapshot", false, "build from the snapshot store instead of the source files")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(serveCmd)
}

// app holds what every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
	builder  *dataset.Builder
	sources  []ingest.Source
}

// setup loads the config, applies flag overrides and wires the builder.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dirFlag != "" {
		cfg.Dataset.Dir = dirFlag
	}
	if cutoffFlag != "" {
		cfg.Dataset.Cutoff = cutoffFlag
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cutoff, err := cfg.CutoffTime()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	builder := dataset.NewBuilder(ingest.NewLoader(cfg.Dataset.Dir, logger), cutoff, logger)
	builder.SetMetrics(metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		builder:  builder,
		sources:  server.Sources(cfg.Dataset),
	}, nil
}

func (a *app) openStore() (storage.Storage, error) {
	return server.InitializeStorage(a.cfg.Storage, a.logger)
}

// build produces the dataset from the source files, or from the snapshot
// store with --snapshot.
func (a *app) build(ctx context.Context) (*dataset.Dataset, error) {
	if !fromSnapshot {
		return a.builder.Build(ctx, a.sources)
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return a.builder.BuildFromStore(ctx, store)
}

func (a *app) close() {
	_ = a.logger.Sync()
}
