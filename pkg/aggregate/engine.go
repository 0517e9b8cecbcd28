package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nicktill/tenantobs/pkg/config"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/logging"
	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/telemetry"
)

// Engine computes views over one dataset. The dataset is read-only, so
// any number of views may run at once.
type Engine struct {
	ds       *dataset.Dataset
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	parallel int
}

// NewEngine creates an engine over ds.
func NewEngine(ds *dataset.Dataset, logger *zap.Logger) *Engine {
	return &Engine{
		ds:       ds,
		logger:   logging.OrNop(logger),
		parallel: config.MaxParallelViews,
	}
}

// SetMetrics attaches aggregate metrics.
func (e *Engine) SetMetrics(m *telemetry.Metrics) {
	e.metrics = m
}

// SetParallelism bounds how many views ComputeAll runs at once.
func (e *Engine) SetParallelism(n int) {
	if n > 0 {
		e.parallel = n
	}
}

// Dataset returns the dataset the engine reads.
func (e *Engine) Dataset() *dataset.Dataset {
	return e.ds
}

// Compute runs one view. A degenerate result is returned with a nil
// error; check Table.Degenerate.
func (e *Engine) Compute(ctx context.Context, name string, opts Options) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, ok := views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}

	start := time.Now()

	p := v.Pipeline
	if opts.WithStd && v.SupportsStd {
		p.Reduction = ReduceMeanStd
	}

	t := p.Run(e.records(p.Filter))
	t.Name = v.Name
	t.Title = v.TitleFor(opts)

	if v.Overlay != nil {
		t.OverlayOccupancy(v.Overlay.Run(e.records(v.Overlay.Filter)))
	}

	elapsed := time.Since(start)
	e.metrics.ObserveAggregate(name, elapsed, t.Degenerate)
	e.logger.Debug("aggregate computed",
		zap.String("view", name),
		zap.Bool("with_std", t.HasStd),
		zap.Int("rows", len(t.Rows)),
		zap.Bool("degenerate", t.Degenerate),
		zap.Duration("duration", elapsed),
	)
	if t.Degenerate {
		e.logger.Warn("degenerate aggregate", zap.String("view", name), zap.Error(t.Err()))
	}
	return t, nil
}

func (e *Engine) records(filter func(*sensor.Record) bool) []sensor.Record {
	if filter == nil {
		return e.ds.Records()
	}
	return e.ds.Select(filter)
}

// Results holds the outcome of ComputeAll. A view appears in exactly one
// of the two maps.
type Results struct {
	Tables map[string]*Table
	Errors map[string]error
}

// ComputeAll runs every view in parallel. A failing view is reported in
// Results.Errors and does not stop the others.
func (e *Engine) ComputeAll(ctx context.Context, opts Options) *Results {
	res := &Results{
		Tables: make(map[string]*Table, len(views)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.parallel)

	for _, name := range Names() {
		g.Go(func() error {
			t, err := e.computeSafe(ctx, name, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[name] = err
				return nil
			}
			res.Tables[name] = t
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("aggregates computed",
		zap.String("build_id", e.ds.BuildID()),
		zap.Int("views", len(res.Tables)),
		zap.Int("failed", len(res.Errors)),
	)
	return res
}

// computeSafe keeps a panicking view local to that view.
func (e *Engine) computeSafe(ctx context.Context, name string, opts Options) (t *Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("view %s panicked: %v", name, r)
		}
	}()
	return e.Compute(ctx, name, opts)
}
