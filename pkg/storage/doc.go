/*
Package storage provides the pluggable snapshot store for tenant records.

# Storage Interface

A snapshot is the record set of one dataset build, kept so that later
runs can rebuild the dataset without re-reading the CSV sources:

	type Storage interface {
	    Write(ctx context.Context, records []sensor.Record) error
	    Query(ctx context.Context, req QueryRequest) ([]sensor.Record, error)
	    Reset(ctx context.Context) error
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

Backends:
  - memory: slice-backed, for tests and one-shot runs
  - badger: BadgerDB (LSM tree + Snappy compression) on disk

# Uniqueness

Records are identified by sensor.Record.Key. Writing a record whose key
is already stored fails the whole batch with ErrDuplicate. The snapshot
command calls Reset before writing so each snapshot replaces the
previous one wholesale.

# Key Layout (badger)

	[xxhash(tenant) 8 bytes][unix seconds 8 bytes][record key 8 bytes]

Keys sort by tenant then time, so a tenant filter becomes a prefix scan
and a tenant's records come back in chronological order.

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data/tenantobs"})
	if err != nil {
	    return err
	}
	defer store.Close()

	if err := store.Reset(ctx); err != nil {
	    return err
	}
	if err := store.Write(ctx, ds.Records()); err != nil {
	    return err
	}

	records, err := store.Query(ctx, storage.QueryRequest{
	    Tenants: []string{"0201a8c87da4"},
	})
*/
package storage
