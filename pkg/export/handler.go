package export

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ContentType returns the MIME type of a format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Respond renders fn into w as an attachment named after name. Output is
// buffered so an encoding failure can still produce a 500.
func Respond(w http.ResponseWriter, name string, f Format, fn func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		http.Error(w, fmt.Sprintf("Export failed: %v", err), http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", f.ContentType())
	if f == FormatCSV {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tenantobs-%s.%s", name, f.Ext()))
	}
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
