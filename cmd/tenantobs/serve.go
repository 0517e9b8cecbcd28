package main

import (
	"github.com/spf13/cobra"

	"github.com/nicktill/tenantobs/pkg/server"
	"github.com/nicktill/tenantobs/pkg/storage"
)

var (
	servePort  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve aggregates over HTTP, rebuilding the dataset periodically",
	Long: `Serve the read API over the current dataset. The dataset is rebuilt on
server.reload_interval, and on source changes with --watch. A failed rebuild
keeps the previous dataset serving.

Examples:
  tenantobs serve --dir ./logs --port 8080 --watch
  curl localhost:8080/v1/aggregates/average-temperature-by-hour?std=true`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild when a source file changes (overrides server.watch)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg.Server
	if servePort != "" {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("watch") {
		cfg.Watch = serveWatch
	}

	opts := server.Options{
		Port:           cfg.Port,
		ReloadInterval: cfg.ReloadInterval,
		Titles:         a.cfg.Report.Titles,
		Logger:         a.logger,
		Metrics:        a.metrics,
		Gatherer:       a.registry,
	}

	var store storage.Storage
	if fromSnapshot {
		store, err = a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
		opts.Build = server.StoreBuildFunc(a.builder, store)
	} else {
		opts.Build = server.CSVBuildFunc(a.builder, a.sources)
		if cfg.Watch {
			opts.WatchDir = a.cfg.Dataset.Dir
			if opts.WatchDir == "" {
				opts.WatchDir = "."
			}
		}
	}

	return server.New(opts).Run(cmd.Context())
}
