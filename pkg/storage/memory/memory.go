package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/storage"
)

// Storage stores records in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	records []sensor.Record
	keys    map[sensor.Identity]struct{}
	mu      sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		records: make([]sensor.Record, 0, 10000),
		keys:    make(map[sensor.Identity]struct{}),
	}
}

// Write stores records in memory
func (s *Storage) Write(ctx context.Context, records []sensor.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[sensor.Identity]struct{}, len(records))
	for i := range records {
		k := records[i].Identity()
		if _, exists := s.keys[k]; exists {
			return fmt.Errorf("%w: tenant %s at %s", storage.ErrDuplicate, records[i].Tenant, records[i].Timestamp.Format(time.RFC3339))
		}
		if _, exists := batch[k]; exists {
			return fmt.Errorf("%w: tenant %s at %s", storage.ErrDuplicate, records[i].Tenant, records[i].Timestamp.Format(time.RFC3339))
		}
		batch[k] = struct{}{}
	}

	for k := range batch {
		s.keys[k] = struct{}{}
	}
	s.records = append(s.records, records...)
	return nil
}

// Query retrieves records matching the request, in write order
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]sensor.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []sensor.Record
	for i := range s.records {
		if !req.Matches(&s.records[i]) {
			continue
		}

		results = append(results, s.records[i])

		// Limit check
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}
	}

	return results, nil
}

// Reset drops every record
func (s *Storage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]sensor.Record, 0, 10000)
	s.keys = make(map[sensor.Identity]struct{})
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalRecords: uint64(len(s.records)),
	}

	if len(s.records) == 0 {
		return stats, nil
	}

	// Count tenants and find min/max timestamps in single pass
	tenants := make(map[string]bool)
	oldest := s.records[0].Timestamp
	newest := s.records[0].Timestamp

	for i := range s.records {
		r := &s.records[i]
		tenants[r.Tenant] = true

		if r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}

	stats.TotalTenants = uint64(len(tenants))
	stats.OldestRecord = oldest
	stats.NewestRecord = newest

	// Rough size estimate
	for i := range s.records {
		stats.SizeBytes += uint64(len(s.records[i].Raw)) + 64
	}

	return stats, nil
}
