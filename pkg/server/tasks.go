package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/storage"
	"github.com/nicktill/tenantobs/pkg/storage/badger"
)

const gcInterval = 10 * time.Minute

// RunRebuildLoop builds once on start, then on every reload tick and
// every Trigger, until ctx is done.
func (s *Server) RunRebuildLoop(ctx context.Context) {
	s.logger.Info("initial dataset build")
	s.rebuildWithRetry(ctx)

	var tick <-chan time.Time
	if s.opts.ReloadInterval > 0 {
		ticker := time.NewTicker(s.opts.ReloadInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			s.logger.Info("scheduled rebuild started")
			s.rebuildWithRetry(ctx)
		case <-s.trigger:
			s.logger.Info("source change rebuild started")
			s.rebuildWithRetry(ctx)
		case <-ctx.Done():
			s.logger.Info("stopping rebuild scheduler")
			return
		}
	}
}

// rebuildWithRetry retries a failed build with exponential backoff:
// base, 2*base, 4*base...
func (s *Server) rebuildWithRetry(ctx context.Context) bool {
	maxRetries := s.opts.MaxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.opts.RetryBaseDelay * time.Duration(1<<(attempt-1))
			s.logger.Info("retrying rebuild",
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", maxRetries+1),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return false
			}
		}

		err := s.Rebuild(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		s.logger.Warn("rebuild failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries+1),
			zap.Error(err),
		)
		if status := s.buildMonitor.Status(); !status.Healthy {
			s.logger.Error("rebuilds are failing",
				zap.Int("consecutive_errors", status.ConsecutiveErrors),
				zap.String("serving_build_id", status.BuildID),
			)
		}
	}

	s.logger.Warn("rebuild failed after all attempts, keeping previous dataset",
		zap.Int("attempts", maxRetries+1),
	)
	return false
}

// RunStoreGC runs BadgerDB value log garbage collection periodically.
// Snapshot replacement drops every key, so the value log accumulates garbage.
func RunStoreGC(ctx context.Context, store storage.Storage, logger *zap.Logger) {
	badgerStore, ok := store.(*badger.Storage)
	if !ok {
		logger.Debug("storage is not badger, skipping GC")
		return
	}

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if err := badgerStore.RunGC(0.5); err != nil {
				logger.Warn("badger GC failed", zap.Error(err))
				continue
			}
			logger.Debug("badger GC completed", zap.Duration("duration", time.Since(start)))
		case <-ctx.Done():
			return
		}
	}
}
