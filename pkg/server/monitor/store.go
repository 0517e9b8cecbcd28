package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/nicktill/tenantobs/pkg/storage"
)

// DefaultCacheDuration bounds how often the store is asked for stats.
const DefaultCacheDuration = 10 * time.Second

// StoreMonitor caches snapshot store statistics. Badger stats walk the
// whole keyspace, so health checks must not hit them on every request.
type StoreMonitor struct {
	store         storage.Storage
	cached        *storage.Stats
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStoreMonitor creates a monitor over store.
func NewStoreMonitor(store storage.Storage, cacheDuration time.Duration) *StoreMonitor {
	if cacheDuration <= 0 {
		cacheDuration = DefaultCacheDuration
	}
	return &StoreMonitor{store: store, cacheDuration: cacheDuration}
}

// Stats returns the store statistics, refreshed at most once per cache window.
func (sm *StoreMonitor) Stats(ctx context.Context) (*storage.Stats, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.cached != nil && time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cached, nil
	}

	stats, err := sm.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sm.cached = stats
	sm.lastCheck = time.Now()
	return stats, nil
}

// Invalidate forces the next Stats call to query the store.
func (sm *StoreMonitor) Invalidate() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cached = nil
}
