package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/storage"
)

const (
	// MaxImportBatchSize is the maximum number of records written at once
	MaxImportBatchSize = 5000
)

// DumpMetadata heads a records dump.
type DumpMetadata struct {
	ExportedAt  time.Time `json:"exported_at"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	RecordCount int       `json:"record_count"`
	Version     string    `json:"version"`
}

// Dump is the on-disk layout of a snapshot backup.
type Dump struct {
	Metadata DumpMetadata    `json:"metadata"`
	Records  []sensor.Record `json:"records"`
}

// DumpResult contains stats about a dump
type DumpResult struct {
	RecordsExported int
	TimeRange       string
}

// DumpRecords writes every stored record matching req as a JSON dump.
func DumpRecords(ctx context.Context, store storage.Storage, w io.Writer, req storage.QueryRequest) (*DumpResult, error) {
	records, err := store.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	dump := Dump{
		Metadata: DumpMetadata{
			ExportedAt:  time.Now().UTC(),
			RecordCount: len(records),
			Version:     Version,
		},
		Records: records,
	}
	if len(records) > 0 {
		dump.Metadata.StartTime, dump.Metadata.EndTime = timeRange(records)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(dump); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &DumpResult{
		RecordsExported: len(records),
		TimeRange:       formatRange(dump.Metadata.StartTime, dump.Metadata.EndTime, len(records)),
	}, nil
}

// Importer loads record dumps into a snapshot store
type Importer struct {
	storage storage.Storage
}

// NewImporter creates a new importer
func NewImporter(store storage.Storage) *Importer {
	return &Importer{storage: store}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	RecordsImported int       `json:"records_imported"`
	BatchesWritten  int       `json:"batches_written"`
	TimeRange       string    `json:"time_range"`
	ImportedAt      time.Time `json:"imported_at"`
	Errors          []string  `json:"errors,omitempty"`
}

// ImportFromJSON imports records from a dump. Invalid records are skipped
// and reported; a duplicate aborts the batch it is in.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var dump Dump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var validationErrors []string
	valid := make([]sensor.Record, 0, len(dump.Records))
	for i, rec := range dump.Records {
		if err := validateImportedRecord(rec); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		rec.Timestamp = rec.Timestamp.UTC()
		valid = append(valid, rec)
	}

	batchCount := 0
	for i := 0; i < len(valid); i += MaxImportBatchSize {
		end := min(i+MaxImportBatchSize, len(valid))
		if err := im.storage.Write(ctx, valid[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", batchCount, err)
		}
		batchCount++
	}

	var start, end time.Time
	if len(valid) > 0 {
		start, end = timeRange(valid)
	}
	return &ImportResult{
		RecordsImported: len(valid),
		BatchesWritten:  batchCount,
		TimeRange:       formatRange(start, end, len(valid)),
		ImportedAt:      time.Now(),
		Errors:          validationErrors,
	}, nil
}

func validateImportedRecord(r sensor.Record) error {
	if r.Tenant == "" {
		return fmt.Errorf("tenant cannot be empty")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}
	if !gjson.Valid(r.Raw) || !gjson.Parse(r.Raw).IsObject() {
		return fmt.Errorf("raw payload is not a JSON object")
	}
	return nil
}

func timeRange(records []sensor.Record) (time.Time, time.Time) {
	lo, hi := records[0].Timestamp, records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(lo) {
			lo = r.Timestamp
		}
		if r.Timestamp.After(hi) {
			hi = r.Timestamp
		}
	}
	return lo, hi
}

func formatRange(start, end time.Time, n int) string {
	if n == 0 {
		return "empty"
	}
	return fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
}
