package server

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/config"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/ingest"
	"github.com/nicktill/tenantobs/pkg/storage"
	"github.com/nicktill/tenantobs/pkg/storage/badger"
)

// InitializeStorage opens the badger snapshot store described by cfg.
func InitializeStorage(cfg config.StorageConfig, logger *zap.Logger) (storage.Storage, error) {
	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	store, err := badger.New(badger.Config{
		Path:        cfg.Path,
		InMemory:    cfg.InMemory,
		MaxMemoryMB: cfg.MaxMemoryMB,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	logger.Info("snapshot store opened",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory),
	)
	return store, nil
}

// Sources resolves the configured source filenames into tenant sources.
func Sources(cfg config.DatasetConfig) []ingest.Source {
	naming := ingest.Naming{Prefix: cfg.SourcePrefix, Suffix: cfg.SourceSuffix}
	return naming.Sources(cfg.Sources)
}

// CSVBuildFunc rebuilds from the source directory.
func CSVBuildFunc(b *dataset.Builder, sources []ingest.Source) BuildFunc {
	return func(ctx context.Context) (*dataset.Dataset, error) {
		return b.Build(ctx, sources)
	}
}

// StoreBuildFunc rebuilds from the snapshot store.
func StoreBuildFunc(b *dataset.Builder, store storage.Storage) BuildFunc {
	return func(ctx context.Context) (*dataset.Dataset, error) {
		return b.BuildFromStore(ctx, store)
	}
}
