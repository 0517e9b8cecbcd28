package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/correlation"
	"github.com/nicktill/tenantobs/pkg/coverage"
	"github.com/nicktill/tenantobs/pkg/export"
	"github.com/nicktill/tenantobs/pkg/inventory"
	"github.com/nicktill/tenantobs/pkg/sensor"
)

var (
	reportViews  []string
	reportStd    bool
	reportTitles bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print coverage, categories, aggregates, correlations and inventories",
	Long: `Build the dataset and print every pipeline output as console tables.

Examples:
  tenantobs report --dir ./logs
  tenantobs report --dir ./logs --view average-temperature-by-hour --std`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringSliceVar(&reportViews, "view", nil, "aggregate views to print (default all)")
	reportCmd.Flags().BoolVar(&reportStd, "std", false, "include standard deviation bands where supported")
	reportCmd.Flags().BoolVar(&reportTitles, "titles", true, "print view titles (overrides report.titles)")
}

type reportOptions struct {
	Views   []string
	WithStd bool
	Titles  bool
}

func runReport(cmd *cobra.Command, args []string) error {
	for _, v := range reportViews {
		if _, ok := aggregate.Lookup(v); !ok {
			return fmt.Errorf("%w: %q", aggregate.ErrUnknownView, v)
		}
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	titles := a.cfg.Report.Titles
	if cmd.Flags().Changed("titles") {
		titles = reportTitles
	}

	ds, err := a.build(cmd.Context())
	if err != nil {
		return err
	}
	engine := aggregate.NewEngine(ds, a.logger)
	engine.SetMetrics(a.metrics)

	return renderReport(cmd.Context(), cmd.OutOrStdout(), engine, reportOptions{
		Views:   reportViews,
		WithStd: reportStd,
		Titles:  titles,
	})
}

// renderReport writes every section of the console report.
func renderReport(ctx context.Context, out io.Writer, engine *aggregate.Engine, opts reportOptions) error {
	ds := engine.Dataset()
	views := opts.Views
	if len(views) == 0 {
		views = aggregate.Names()
	}

	section(out, export.CoverageTitle, opts.Titles)
	printCoverage(out, coverage.Summarize(ds))

	section(out, "Records by Category", opts.Titles)
	printCategories(out, ds.CategoryCounts())

	for _, name := range views {
		t, err := engine.Compute(ctx, name, aggregate.Options{WithStd: opts.WithStd})
		if err != nil {
			return err
		}
		section(out, t.Title, opts.Titles)
		fmt.Fprintf(out, "[%s]\n", t.Name)
		printTable(out, t)
	}

	for _, metric := range correlation.Metrics {
		m, err := correlation.Compute(ds, metric)
		if err != nil {
			return err
		}
		section(out, m.Title, opts.Titles)
		fmt.Fprintf(out, "[correlation-%s]\n", metric)
		printMatrix(out, m)
	}

	for _, c := range inventory.Categories() {
		inv, err := inventory.ForCategory(ds, c)
		if err != nil {
			return err
		}
		section(out, fmt.Sprintf("Field Information for %s Records", c), opts.Titles)
		fmt.Fprintf(out, "[inventory-%s]\n", c)
		printInventory(out, inv)
	}

	section(out, export.StateValuesTitle, opts.Titles)
	printValues(out, inventory.StateValues(ds))
	section(out, export.FeedbackValuesTitle, opts.Titles)
	printValues(out, inventory.FeedbackValues(ds))
	return nil
}

func section(out io.Writer, title string, titles bool) {
	fmt.Fprintln(out)
	if titles && title != "" {
		fmt.Fprintln(out, title)
		fmt.Fprintln(out, strings.Repeat("=", len(title)))
	}
}

func newTabWriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// cell renders NaN as "-".
func cell(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func printCoverage(out io.Writer, list []coverage.Tenant) {
	w := newTabWriter(out)
	fmt.Fprintln(w, "tenant\tstart\tend\trecords\thours\telapsed\tcoverage %\t")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t\n",
			c.Tenant,
			c.Start.Format(time.DateTime),
			c.End.Format(time.DateTime),
			c.Records,
			c.HoursWithData,
			c.ElapsedHours,
			cell(c.Percentage, 2),
		)
	}
	_ = w.Flush()
}

func printCategories(out io.Writer, counts map[sensor.Category]int) {
	w := newTabWriter(out)
	fmt.Fprintln(w, "category\trecords\t")
	for _, c := range sensor.Categories {
		fmt.Fprintf(w, "%s\t%d\t\n", c, counts[c])
	}
	_ = w.Flush()
}

func printTable(out io.Writer, t *aggregate.Table) {
	if t.Degenerate {
		fmt.Fprintf(out, "warning: %v\n", t.Err())
	}
	w := newTabWriter(out)
	header := "key\tvalue\t"
	if t.HasStd {
		header += "std\tlower\tupper\t"
	}
	if t.HasOverlay {
		header += "occupancy\t"
	}
	fmt.Fprintln(w, header)
	for _, r := range t.Rows {
		line := fmt.Sprintf("%s\t%s\t", r.Label, cell(r.Value, 3))
		if t.HasStd {
			lo, hi := r.Band()
			line += fmt.Sprintf("%s\t%s\t%s\t", cell(r.Std, 3), cell(lo, 3), cell(hi, 3))
		}
		if t.HasOverlay {
			line += cell(r.Occupancy, 3) + "\t"
		}
		fmt.Fprintln(w, line)
	}
	_ = w.Flush()
}

func printMatrix(out io.Writer, m *correlation.Matrix) {
	w := newTabWriter(out)
	fmt.Fprintln(w, "\t"+strings.Join(m.Tenants, "\t")+"\t")
	for i, t := range m.Tenants {
		cells := make([]string, len(m.Values[i]))
		for j, v := range m.Values[i] {
			cells[j] = cell(v, 3)
		}
		fmt.Fprintln(w, t+"\t"+strings.Join(cells, "\t")+"\t")
	}
	_ = w.Flush()
}

func printInventory(out io.Writer, inv *inventory.Inventory) {
	w := newTabWriter(out)
	fmt.Fprintln(w, "field\ttype\tnull\tmin\tmax\t")
	for _, f := range inv.Fields {
		lo, hi := "n/a", "n/a"
		if f.Min.Valid {
			lo = strconv.FormatFloat(f.Min.Float64, 'f', -1, 64)
		}
		if f.Max.Valid {
			hi = strconv.FormatFloat(f.Max.Float64, 'f', -1, 64)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t\n", f.Field, f.Type, f.HasNull, lo, hi)
	}
	_ = w.Flush()
}

func printValues(out io.Writer, values map[string][]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %s\n", k, strings.Join(values[k], ", "))
	}
}
