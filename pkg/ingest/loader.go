package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/logging"
	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/telemetry"
)

// Loader reads tenant sources from a directory.
type Loader struct {
	dir     string
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{
		dir:    dir,
		logger: logging.OrNop(logger),
	}
}

// SetMetrics attaches pipeline metrics.
func (l *Loader) SetMetrics(m *telemetry.Metrics) {
	l.metrics = m
}

// Dir returns the directory sources are read from.
func (l *Loader) Dir() string {
	return l.dir
}

// Check verifies that every source exists before anything is read.
func (l *Loader) Check(sources []Source) error {
	for _, src := range sources {
		info, err := os.Stat(filepath.Join(l.dir, src.File))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return &IngestionError{Source: src.File, Err: fmt.Errorf("%w in %s", ErrSourceNotFound, l.dir)}
			}
			return &IngestionError{Source: src.File, Err: err}
		}
		if info.IsDir() {
			return &IngestionError{Source: src.File, Err: fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, src.File)}
		}
	}
	return nil
}

// LoadAll loads every source, in order. Any failure discards everything
// loaded so far.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) ([][]sensor.Record, error) {
	if err := l.Check(sources); err != nil {
		return nil, err
	}

	sets := make([][]sensor.Record, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := l.Load(src)
		if err != nil {
			return nil, err
		}
		sets = append(sets, records)
	}
	return sets, nil
}

// Load reads one source and tags every row with its tenant.
func (l *Loader) Load(src Source) ([]sensor.Record, error) {
	start := time.Now()
	path := filepath.Join(l.dir, src.File)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &IngestionError{Source: src.File, Err: ErrSourceNotFound}
		}
		return nil, &IngestionError{Source: src.File, Err: err}
	}
	defer f.Close()

	records, err := Parse(f, src.Tenant)
	if err != nil {
		var ie *IngestionError
		if errors.As(err, &ie) {
			ie.Source = src.File
			return nil, ie
		}
		return nil, &IngestionError{Source: src.File, Err: err}
	}

	l.metrics.ObserveLoaded(src.Tenant, len(records))
	l.logger.Debug("source loaded",
		zap.String("source", src.File),
		zap.String("tenant", src.Tenant),
		zap.Int("rows", len(records)),
		zap.Duration("duration", time.Since(start)),
	)
	return records, nil
}
