// Package server exposes the current dataset's pipeline outputs over HTTP
// and keeps that dataset fresh.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/config"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/server/monitor"
	"github.com/nicktill/tenantobs/pkg/storage"
	"github.com/nicktill/tenantobs/pkg/telemetry"
)

// BuildFunc produces a fresh dataset.
type BuildFunc func(ctx context.Context) (*dataset.Dataset, error)

// Options configures a Server.
type Options struct {
	Port           string
	Build          BuildFunc
	ReloadInterval time.Duration

	// WatchDir enables rebuilds on source changes when set.
	WatchDir string

	// Store is the snapshot store, if the server reads from one.
	Store storage.Storage

	Titles bool

	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer

	// Retry policy; zero values use the config defaults.
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Server serves the read API over an atomically swapped engine.
type Server struct {
	opts    Options
	logger  *zap.Logger
	metrics *telemetry.Metrics

	engine       atomic.Pointer[aggregate.Engine]
	buildMonitor *monitor.BuildMonitor
	storeMonitor *monitor.StoreMonitor

	// serializes rebuilds; the ticker and the watcher can both trigger one
	rebuildMu sync.Mutex
	trigger   chan struct{}
}

// New creates a server. Nothing is loaded until Rebuild or Run.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Port == "" {
		opts.Port = config.DefaultPort
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = config.RebuildMaxRetries
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = config.RebuildBaseDelay
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		// a build older than two intervals means the ticker has stalled
		buildMonitor: monitor.NewBuildMonitor(2 * opts.ReloadInterval),
		trigger:      make(chan struct{}, 1),
	}
	if opts.Store != nil {
		s.storeMonitor = monitor.NewStoreMonitor(opts.Store, monitor.DefaultCacheDuration)
	}
	return s
}

// Engine returns the engine over the current dataset, or nil before the
// first successful build.
func (s *Server) Engine() *aggregate.Engine {
	return s.engine.Load()
}

// Swap installs ds as the served dataset.
func (s *Server) Swap(ds *dataset.Dataset) {
	e := aggregate.NewEngine(ds, s.logger)
	e.SetMetrics(s.metrics)
	s.engine.Store(e)
	s.buildMonitor.RecordSuccess(ds.BuildID(), ds.Len())
	if s.storeMonitor != nil {
		s.storeMonitor.Invalidate()
	}
}

// Monitor returns the rebuild monitor.
func (s *Server) Monitor() *monitor.BuildMonitor {
	return s.buildMonitor
}

// Trigger asks the rebuild loop for an out-of-schedule rebuild. Requests
// arriving while one is pending collapse into it.
func (s *Server) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Rebuild builds once, swapping the dataset on success. On failure the
// previous dataset keeps serving.
func (s *Server) Rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	ds, err := s.opts.Build(ctx)
	if err != nil {
		s.buildMonitor.RecordFailure(err)
		return err
	}
	s.Swap(ds)
	s.logger.Info("dataset swapped",
		zap.String("build_id", ds.BuildID()),
		zap.Int("records", ds.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Run serves HTTP until ctx is cancelled, rebuilding in the background.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunRebuildLoop(ctx)
	}()

	if s.opts.WatchDir != "" {
		w, err := NewWatcher(s.opts.WatchDir, s.logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, s.Trigger)
		}()
	}

	if s.opts.Store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RunStoreGC(ctx, s.opts.Store, s.logger)
		}()
	}

	srv := &http.Server{
		Addr:         ":" + s.opts.Port,
		Handler:      s.Router(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("server shutdown", zap.Error(err))
	}
	wg.Wait()

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	s.logger.Info("server stopped")
	return nil
}
