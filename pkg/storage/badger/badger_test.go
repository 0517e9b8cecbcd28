package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guregu/null"

	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/storage"
)

func testRecords(base time.Time) []sensor.Record {
	return []sensor.Record{
		{Timestamp: base, Tenant: "aaa", Device: "t1", Temperature: null.FloatFrom(20), Raw: `{"temperature":20}`},
		{Timestamp: base.Add(time.Hour), Tenant: "aaa", Device: "t1", Temperature: null.FloatFrom(21), Raw: `{"temperature":21}`},
		{Timestamp: base.Add(30 * time.Minute), Tenant: "bbb", Device: "pir", Occupancy: null.BoolFrom(false), Raw: `{"occupancy":false}`},
	}
}

func TestBadgerStorage_WriteAndQuery(t *testing.T) {
	// Use in-memory mode for tests
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)

	if err := store.Write(ctx, testRecords(base)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(results))
	}

	// Tenant filter is a prefix scan; results come back in time order
	results, err = store.Query(ctx, storage.QueryRequest{Tenants: []string{"aaa"}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 records for tenant aaa, got %d", len(results))
	}
	if !results[0].Timestamp.Before(results[1].Timestamp) {
		t.Errorf("Expected chronological order, got %v then %v", results[0].Timestamp, results[1].Timestamp)
	}
	if results[1].Temperature.Float64 != 21 {
		t.Errorf("Expected temperature 21, got %v", results[1].Temperature)
	}
}

func TestBadgerStorage_NullsSurvive(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := store.Write(ctx, testRecords(base)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{Tenants: []string{"bbb"}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(results))
	}

	r := results[0]
	if !r.Occupancy.Valid || r.Occupancy.Bool {
		t.Errorf("Expected explicit occupancy=false, got %+v", r.Occupancy)
	}
	if r.Temperature.Valid {
		t.Errorf("Expected absent temperature, got %v", r.Temperature.Float64)
	}
	if r.Key() != testRecords(base)[2].Key() {
		t.Errorf("Record key changed across storage round trip")
	}
}

func TestBadgerStorage_DuplicateRejected(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)
	records := testRecords(base)

	if err := store.Write(ctx, records[:1]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Second batch carries one new and one already stored record
	err = store.Write(ctx, records)
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Errorf("Expected rejected batch to write nothing, store has %d records", stats.TotalRecords)
	}

	// Duplicates inside one batch are rejected too
	err = store.Write(ctx, []sensor.Record{records[2], records[2]})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for in-batch duplicate, got %v", err)
	}
}

func TestBadgerStorage_ResetAndStats(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := store.Write(ctx, testRecords(base)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRecords != 3 || stats.TotalTenants != 2 {
		t.Errorf("Expected 3 records / 2 tenants, got %d / %d", stats.TotalRecords, stats.TotalTenants)
	}
	if !stats.OldestRecord.Equal(base) || !stats.NewestRecord.Equal(base.Add(time.Hour)) {
		t.Errorf("Unexpected span %v - %v", stats.OldestRecord, stats.NewestRecord)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	results, err := store.Query(ctx, storage.QueryRequest{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty store after reset, got %d records", len(results))
	}

	// The same records can be written again once reset
	if err := store.Write(ctx, testRecords(base)); err != nil {
		t.Errorf("Write after reset failed: %v", err)
	}
}

func TestBadgerStorage_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	base := time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)

	// Write to first instance
	{
		store, err := New(Config{Path: dir})
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		if err := store.Write(ctx, testRecords(base)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	// Read from second instance
	store, err := New(Config{Path: dir})
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer store.Close()

	results, err := store.Query(ctx, storage.QueryRequest{Start: base.Add(20 * time.Minute)})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 records after reopen, got %d", len(results))
	}
}

func TestBadgerStorage_Limit(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Write(ctx, testRecords(time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected limit of 2, got %d", len(results))
	}
}
