package ingest

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Payload limits. A sensor payload is a handful of attributes; anything
// far larger is a corrupt row, not data.
const (
	MaxPayloadBytes    = 64 * 1024 // Maximum info column size
	MaxPayloadFields   = 256       // Maximum flattened attributes per row
	MaxFieldNameLength = 256       // Maximum flattened attribute name length
)

var (
	// ErrPayloadTooLarge is returned when the info column exceeds MaxPayloadBytes
	ErrPayloadTooLarge = fmt.Errorf("payload too large (max %d bytes)", MaxPayloadBytes)

	// ErrTooManyFields is returned when a payload flattens to too many attributes
	ErrTooManyFields = fmt.Errorf("too many payload attributes (max %d)", MaxPayloadFields)

	// ErrFieldNameTooLong is returned when a flattened attribute name is too long
	ErrFieldNameTooLong = fmt.Errorf("attribute name too long (max %d chars)", MaxFieldNameLength)
)

// ValidatePayload checks a raw info column before it is parsed.
func ValidatePayload(raw string) error {
	if len(raw) > MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(raw))
	}
	return nil
}

// ValidateFields checks the flattened attributes of a row.
func ValidateFields(fields map[string]gjson.Result) error {
	if len(fields) > MaxPayloadFields {
		return fmt.Errorf("%w: %d attributes", ErrTooManyFields, len(fields))
	}
	for name := range fields {
		if len(name) > MaxFieldNameLength {
			return fmt.Errorf("%w: %.32q...", ErrFieldNameTooLong, name)
		}
	}
	return nil
}
