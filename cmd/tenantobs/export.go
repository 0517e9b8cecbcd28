package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/export"
)

var (
	exportOut    string
	exportFormat string
	exportStd    bool
	exportTitles bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every aggregate, matrix, coverage list and inventory to files",
	Long: `Build the dataset and write one file per output into a directory.

Examples:
  # JSON files into ./out
  tenantobs export --dir ./logs --out ./out

  # CSV with standard deviation bands on the hourly temperature views
  tenantobs export --dir ./logs --out ./out --format csv --std`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "out", "output directory")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "json or csv")
	exportCmd.Flags().BoolVar(&exportStd, "std", false, "include standard deviation bands where supported")
	exportCmd.Flags().BoolVar(&exportTitles, "titles", true, "emit view titles (overrides report.titles)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	titles := a.cfg.Report.Titles
	if cmd.Flags().Changed("titles") {
		titles = exportTitles
	}

	ds, err := a.build(cmd.Context())
	if err != nil {
		return err
	}

	engine := aggregate.NewEngine(ds, a.logger)
	engine.SetMetrics(a.metrics)

	manifest, err := export.WriteAll(cmd.Context(), exportOut, engine, export.BundleOptions{
		Format:  format,
		WithStd: exportStd,
		Titles:  titles,
	}, a.logger)
	if manifest != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files to %s\n", len(manifest.Files), exportOut)
	}
	if err != nil {
		a.logger.Error("export incomplete", zap.Error(err))
		return err
	}
	return nil
}
