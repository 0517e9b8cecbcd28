package storage

import (
	"context"
	"errors"
	"time"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

// ErrDuplicate is returned when a written record's key is already stored.
var ErrDuplicate = errors.New("record already stored")

// Storage defines the interface for record snapshot backends.
// Implementations: memory (testing), badger (persistent)
type Storage interface {
	// Write stores records. A record whose key is already present fails
	// the whole call with ErrDuplicate and nothing is written.
	Write(ctx context.Context, records []sensor.Record) error

	// Query retrieves records within a time range
	Query(ctx context.Context, req QueryRequest) ([]sensor.Record, error)

	// Reset removes every stored record
	Reset(ctx context.Context) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// QueryRequest specifies what records to retrieve
type QueryRequest struct {
	// Time range, inclusive. A zero bound is open.
	Start time.Time
	End   time.Time

	// Filter by tenant (optional)
	Tenants []string

	// Limit number of results (0 = no limit)
	Limit int
}

// Matches reports whether a record passes the request filters.
func (q QueryRequest) Matches(r *sensor.Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if len(q.Tenants) > 0 {
		for _, t := range q.Tenants {
			if r.Tenant == t {
				return true
			}
		}
		return false
	}
	return true
}

// Stats provides storage health and usage info
type Stats struct {
	// Total records stored
	TotalRecords uint64

	// Distinct tenants
	TotalTenants uint64

	// Storage size in bytes
	SizeBytes uint64

	// Oldest record timestamp
	OldestRecord time.Time

	// Newest record timestamp
	NewestRecord time.Time
}
