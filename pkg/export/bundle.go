package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/correlation"
	"github.com/nicktill/tenantobs/pkg/coverage"
	"github.com/nicktill/tenantobs/pkg/inventory"
)

// Titles of the value listings.
const (
	StateValuesTitle    = "Possible values of the state attribute"
	FeedbackValuesTitle = "Possible values of the feedback attribute"
)

// BundleOptions controls WriteAll.
type BundleOptions struct {
	Format  Format
	WithStd bool
	Titles  bool
}

// Manifest lists what a bundle run produced.
type Manifest struct {
	Files  []string
	Failed map[string]error
}

// TableFile names the file of an aggregate table.
func TableFile(t *aggregate.Table, f Format) string {
	if t.HasStd {
		return fmt.Sprintf("%s-std.%s", t.Name, f.Ext())
	}
	return fmt.Sprintf("%s.%s", t.Name, f.Ext())
}

// WriteAll writes every pipeline output of the engine's dataset into dir.
// A failing output is recorded in the manifest and the rest are still
// written; the returned error joins every failure.
func WriteAll(ctx context.Context, dir string, engine *aggregate.Engine, opts BundleOptions, logger *zap.Logger) (*Manifest, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ds := engine.Dataset()
	ex := NewExporter(ds, opts.Titles)
	m := &Manifest{Failed: make(map[string]error)}

	write := func(name string, fn func(io.Writer) error) {
		path := filepath.Join(dir, name)
		if err := writeFile(path, fn); err != nil {
			m.Failed[name] = err
			logger.Warn("export failed", zap.String("file", name), zap.Error(err))
			return
		}
		m.Files = append(m.Files, path)
	}

	results := engine.ComputeAll(ctx, aggregate.Options{WithStd: opts.WithStd})
	for name, err := range results.Errors {
		m.Failed[name] = err
	}
	for _, name := range aggregate.Names() {
		t, ok := results.Tables[name]
		if !ok {
			continue
		}
		write(TableFile(t, opts.Format), func(w io.Writer) error {
			return ex.Table(w, t, opts.Format)
		})
	}

	for _, metric := range correlation.Metrics {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		name := fmt.Sprintf("correlation-%s.%s", metric, opts.Format.Ext())
		mat, err := correlation.Compute(ds, metric)
		if err != nil {
			m.Failed[name] = err
			continue
		}
		write(name, func(w io.Writer) error {
			return ex.Matrix(w, mat, opts.Format)
		})
	}

	write("coverage."+opts.Format.Ext(), func(w io.Writer) error {
		return ex.Coverage(w, coverage.Summarize(ds), opts.Format)
	})

	for _, c := range inventory.Categories() {
		name := fmt.Sprintf("inventory-%s.%s", c, opts.Format.Ext())
		inv, err := inventory.ForCategory(ds, c)
		if err != nil {
			m.Failed[name] = err
			continue
		}
		write(name, func(w io.Writer) error {
			return ex.Inventory(w, inv, opts.Format)
		})
	}

	write("state-values."+opts.Format.Ext(), func(w io.Writer) error {
		return ex.Values(w, "state", StateValuesTitle, inventory.StateValues(ds), opts.Format)
	})
	write("feedback-values."+opts.Format.Ext(), func(w io.Writer) error {
		return ex.Values(w, "feedback", FeedbackValuesTitle, inventory.FeedbackValues(ds), opts.Format)
	})

	logger.Info("bundle written",
		zap.String("dir", dir),
		zap.String("build_id", ds.BuildID()),
		zap.Int("files", len(m.Files)),
		zap.Int("failed", len(m.Failed)),
	)

	if len(m.Failed) == 0 {
		return m, nil
	}
	names := make([]string, 0, len(m.Failed))
	for name := range m.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("%s: %w", name, m.Failed[name]))
	}
	return m, errors.Join(errs...)
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(f)
}
