// Package export renders pipeline outputs for external consumers.
//
// Aggregate tables, correlation matrices, coverage listings, field
// inventories and value listings are written as JSON or CSV. JSON documents
// carry a metadata header with the dataset build id and cutoff; undefined
// values are encoded as null. CSV output has a header row and writes
// undefined values as empty cells.
//
// WriteAll produces one file per output:
//
//	<view>.json | <view>-std.json
//	correlation-<metric>.json
//	coverage.json
//	inventory-<category>.json
//	state-values.json, feedback-values.json
//
// The package also dumps and restores the record snapshot store:
//
//	result, err := export.DumpRecords(ctx, store, file, storage.QueryRequest{})
//
//	importer := export.NewImporter(store)
//	result, err := importer.ImportFromJSON(ctx, file)
//
// Imports are written in batches of MaxImportBatchSize. Records with an
// empty tenant, a zero timestamp or a payload that is not a JSON object are
// skipped and reported in ImportResult.Errors.
package export
