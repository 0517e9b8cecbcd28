package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/logging"
	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/storage"
)

const (
	keySize = 24

	// records written per transaction; larger batches hit ErrTxnTooBig
	writeChunk = 1000

	slowQueryThreshold = 5 * time.Second
)

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db     *badger.DB
	logger *zap.Logger
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly defaults)
	MaxMemoryMB int64

	// Logger receives slow-scan warnings. Optional.
	Logger *zap.Logger
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// BadgerDB defaults: 64 MB memtable, 5 x 64 MB = 320 MB total.
	// A snapshot is written once and read back whole, 16 MB memtable is plenty.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	// Block and index caches are unbounded unless set
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(1).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db, logger: logging.OrNop(cfg.Logger)}, nil
}

// Write stores records in BadgerDB. Keys are checked before anything is
// written so a duplicate leaves the store untouched.
func (s *Storage) Write(ctx context.Context, records []sensor.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := make([][]byte, len(records))
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		keys[i] = makeKey(&records[i])
		if _, dup := seen[string(keys[i])]; dup {
			return duplicateError(&records[i])
		}
		seen[string(keys[i])] = struct{}{}
	}

	done := make(chan error, 1)
	go func() {
		done <- s.write(ctx, records, keys)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

func (s *Storage) write(ctx context.Context, records []sensor.Record, keys [][]byte) error {
	err := s.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			_, err := txn.Get(key)
			if err == nil {
				return duplicateError(&records[i])
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(records); start += writeChunk {
		end := min(start+writeChunk, len(records))
		err := s.db.Update(func(txn *badger.Txn) error {
			for i := start; i < end; i++ {
				value, err := json.Marshal(&records[i])
				if err != nil {
					return fmt.Errorf("failed to encode record: %w", err)
				}
				if err := txn.Set(keys[i], value); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Query retrieves records matching the request. Results are ordered by
// tenant hash, then time.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]sensor.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type queryResult struct {
		results []sensor.Record
		err     error
	}
	done := make(chan queryResult, 1)

	go func() {
		var res queryResult
		start := time.Now()
		var iterCount int

		prefixes := [][]byte{nil}
		if len(req.Tenants) > 0 {
			prefixes = prefixes[:0]
			for _, t := range req.Tenants {
				prefixes = append(prefixes, tenantPrefix(t))
			}
		}

		res.err = s.db.View(func(txn *badger.Txn) error {
			for _, prefix := range prefixes {
				opts := badger.DefaultIteratorOptions
				opts.PrefetchSize = 100
				opts.Prefix = prefix

				it := txn.NewIterator(opts)
				err := func() error {
					defer it.Close()
					for it.Rewind(); it.Valid(); it.Next() {
						iterCount++
						if iterCount%1000 == 0 {
							if err := ctx.Err(); err != nil {
								return err
							}
						}

						var r sensor.Record
						if err := it.Item().Value(func(val []byte) error {
							return json.Unmarshal(val, &r)
						}); err != nil {
							return fmt.Errorf("failed to decode record: %w", err)
						}

						if !req.Matches(&r) {
							continue
						}
						res.results = append(res.results, r)

						if req.Limit > 0 && len(res.results) >= req.Limit {
							return errLimit
						}
					}
					return nil
				}()
				if errors.Is(err, errLimit) {
					return nil
				}
				if err != nil {
					return err
				}
			}
			return nil
		})

		if elapsed := time.Since(start); elapsed > slowQueryThreshold {
			s.logger.Warn("slow snapshot query",
				zap.Duration("elapsed", elapsed),
				zap.Int("iterations", iterCount),
				zap.Int("results", len(res.results)),
			)
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.results, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

var errLimit = errors.New("limit reached")

// Reset drops every stored record
func (s *Storage) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("failed to drop records: %w", err)
	}
	return nil
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// Returns nil when there was nothing to collect.
func (s *Storage) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		stats := &storage.Stats{}

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			tenants := make(map[uint64]bool)
			var oldest, newest time.Time
			var iterCount int

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				stats.TotalRecords++

				tenant, ts := parseKey(it.Item().Key())
				tenants[tenant] = true

				if oldest.IsZero() || ts.Before(oldest) {
					oldest = ts
				}
				if newest.IsZero() || ts.After(newest) {
					newest = ts
				}
			}

			stats.TotalTenants = uint64(len(tenants))
			stats.OldestRecord = oldest
			stats.NewestRecord = newest
			return nil
		})

		if res.err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}

		res.stats = stats
		done <- res
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

// makeKey creates a sortable key: tenant_hash + timestamp + record key
// Format: [tenant_hash (8 bytes)][unix seconds (8 bytes)][record key (8 bytes)]
func makeKey(r *sensor.Record) []byte {
	key := make([]byte, keySize)
	binary.BigEndian.PutUint64(key[0:8], xxhash.Sum64String(r.Tenant))
	binary.BigEndian.PutUint64(key[8:16], uint64(r.Timestamp.Unix()))
	binary.BigEndian.PutUint64(key[16:24], r.Key())
	return key
}

func tenantPrefix(tenant string) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(tenant))
	return prefix
}

// parseKey extracts the tenant hash and timestamp from a storage key
func parseKey(key []byte) (uint64, time.Time) {
	tenant := binary.BigEndian.Uint64(key[0:8])
	ts := time.Unix(int64(binary.BigEndian.Uint64(key[8:16])), 0).UTC()
	return tenant, ts
}

func duplicateError(r *sensor.Record) error {
	return fmt.Errorf("%w: tenant %s at %s", storage.ErrDuplicate, r.Tenant, r.Timestamp.Format(time.RFC3339))
}
