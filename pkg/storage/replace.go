package storage

import (
	"context"
	"fmt"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

// DefaultBatchSize is the chunk size used by Replace.
const DefaultBatchSize = 5000

// Replace drops every stored record and writes records in batches.
// The store is left empty if a batch fails.
func Replace(ctx context.Context, s Storage, records []sensor.Record, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		if err := s.Write(ctx, records[i:end]); err != nil {
			if rerr := s.Reset(ctx); rerr != nil {
				return fmt.Errorf("failed to write batch %d: %w (reset also failed: %v)", i/batchSize, err, rerr)
			}
			return fmt.Errorf("failed to write batch %d: %w", i/batchSize, err)
		}
	}
	return nil
}
