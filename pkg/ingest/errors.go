package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound means a configured source file is absent.
	ErrSourceNotFound = errors.New("source not found")

	// ErrDuplicateRecord means the same record was ingested twice.
	ErrDuplicateRecord = errors.New("duplicate record")

	// ErrMalformedRow means a row could not be parsed.
	ErrMalformedRow = errors.New("malformed row")
)

// IngestionError aborts a pipeline run. No partial dataset is produced
// when one is returned.
type IngestionError struct {
	Source string
	Line   int // 0 when the error is not tied to a row
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ingest %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("ingest %s: %v", e.Source, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// IsIngestionError reports whether err is, or wraps, an IngestionError.
func IsIngestionError(err error) bool {
	var ie *IngestionError
	return errors.As(err, &ie)
}
