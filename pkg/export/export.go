package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/guregu/null"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/correlation"
	"github.com/nicktill/tenantobs/pkg/coverage"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/inventory"
)

// Version of the export document layout.
const Version = "1.0"

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("invalid format %q: must be json or csv", s)
}

// Ext returns the file extension, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Metadata wraps every JSON document.
type Metadata struct {
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	BuildID     string    `json:"build_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Cutoff      time.Time `json:"cutoff"`
	Version     string    `json:"version"`
}

type document struct {
	Metadata Metadata `json:"metadata"`
	Data     any      `json:"data"`
}

// Exporter encodes pipeline outputs of one dataset.
type Exporter struct {
	ds     *dataset.Dataset
	titles bool
	now    func() time.Time
}

// NewExporter creates an exporter. Titles are emitted only when titles is set.
func NewExporter(ds *dataset.Dataset, titles bool) *Exporter {
	return &Exporter{ds: ds, titles: titles, now: time.Now}
}

func (e *Exporter) metadata(kind, name, title string) Metadata {
	md := Metadata{
		Kind:        kind,
		Name:        name,
		BuildID:     e.ds.BuildID(),
		GeneratedAt: e.now().UTC(),
		Cutoff:      e.ds.Cutoff(),
		Version:     Version,
	}
	if e.titles {
		md.Title = title
	}
	return md
}

func writeJSON(w io.Writer, md Metadata, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(document{Metadata: md, Data: data}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// nullable maps NaN to JSON null.
func nullable(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

// formatFloat renders NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNull(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

type tableRow struct {
	Key       aggregate.Key `json:"key"`
	Label     string        `json:"label"`
	Value     null.Float    `json:"value"`
	Std       *null.Float   `json:"std,omitempty"`
	Lower     *null.Float   `json:"lower,omitempty"`
	Upper     *null.Float   `json:"upper,omitempty"`
	Occupancy *null.Float   `json:"occupancy,omitempty"`
	Samples   int           `json:"samples"`
}

type tableData struct {
	Cycle      string     `json:"cycle"`
	Degenerate bool       `json:"degenerate"`
	Rows       []tableRow `json:"rows"`
}

// Table writes an aggregate table.
func (e *Exporter) Table(w io.Writer, t *aggregate.Table, f Format) error {
	if f == FormatCSV {
		header := []string{"key_a", "key_b", "label", "value"}
		if t.HasStd {
			header = append(header, "std", "lower", "upper")
		}
		if t.HasOverlay {
			header = append(header, "occupancy")
		}
		header = append(header, "samples")

		rows := make([][]string, 0, len(t.Rows))
		for _, r := range t.Rows {
			row := []string{strconv.Itoa(r.Key.A), strconv.Itoa(r.Key.B), r.Label, formatFloat(r.Value)}
			if t.HasStd {
				lo, hi := r.Band()
				row = append(row, formatFloat(r.Std), formatFloat(lo), formatFloat(hi))
			}
			if t.HasOverlay {
				row = append(row, formatFloat(r.Occupancy))
			}
			row = append(row, strconv.Itoa(r.Samples))
			rows = append(rows, row)
		}
		return writeCSV(w, header, rows)
	}

	data := tableData{Cycle: t.Cycle.String(), Degenerate: t.Degenerate, Rows: make([]tableRow, 0, len(t.Rows))}
	for _, r := range t.Rows {
		row := tableRow{Key: r.Key, Label: r.Label, Value: nullable(r.Value), Samples: r.Samples}
		if t.HasStd {
			lo, hi := r.Band()
			std, lower, upper := nullable(r.Std), nullable(lo), nullable(hi)
			row.Std, row.Lower, row.Upper = &std, &lower, &upper
		}
		if t.HasOverlay {
			occ := nullable(r.Occupancy)
			row.Occupancy = &occ
		}
		data.Rows = append(data.Rows, row)
	}
	return writeJSON(w, e.metadata("aggregate", t.Name, t.Title), data)
}

type matrixData struct {
	Tenants []string       `json:"tenants"`
	Values  [][]null.Float `json:"values"`
}

// Matrix writes a correlation matrix. CSV has one row per tenant.
func (e *Exporter) Matrix(w io.Writer, m *correlation.Matrix, f Format) error {
	if f == FormatCSV {
		header := append([]string{"tenant"}, m.Tenants...)
		rows := make([][]string, len(m.Tenants))
		for i, t := range m.Tenants {
			row := []string{t}
			for _, v := range m.Values[i] {
				row = append(row, formatFloat(v))
			}
			rows[i] = row
		}
		return writeCSV(w, header, rows)
	}

	data := matrixData{Tenants: m.Tenants, Values: make([][]null.Float, len(m.Values))}
	for i, row := range m.Values {
		data.Values[i] = make([]null.Float, len(row))
		for j, v := range row {
			data.Values[i][j] = nullable(v)
		}
	}
	return writeJSON(w, e.metadata("correlation", m.Metric, m.Title), data)
}

type coverageRow struct {
	Tenant        string     `json:"tenant"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Records       int        `json:"records"`
	HoursWithData int        `json:"hours_with_data"`
	ElapsedHours  int        `json:"elapsed_hours"`
	Percentage    null.Float `json:"percentage"`
}

// CoverageTitle is the title of the coverage listing.
const CoverageTitle = "General Information by Tenant"

// Coverage writes the per-tenant coverage listing.
func (e *Exporter) Coverage(w io.Writer, list []coverage.Tenant, f Format) error {
	if f == FormatCSV {
		header := []string{"tenant", "start", "end", "records", "hours_with_data", "elapsed_hours", "percentage"}
		rows := make([][]string, 0, len(list))
		for _, c := range list {
			rows = append(rows, []string{
				c.Tenant,
				c.Start.Format(time.RFC3339),
				c.End.Format(time.RFC3339),
				strconv.Itoa(c.Records),
				strconv.Itoa(c.HoursWithData),
				strconv.Itoa(c.ElapsedHours),
				formatFloat(c.Percentage),
			})
		}
		return writeCSV(w, header, rows)
	}

	data := make([]coverageRow, 0, len(list))
	for _, c := range list {
		data = append(data, coverageRow{
			Tenant:        c.Tenant,
			Start:         c.Start,
			End:           c.End,
			Records:       c.Records,
			HoursWithData: c.HoursWithData,
			ElapsedHours:  c.ElapsedHours,
			Percentage:    nullable(c.Percentage),
		})
	}
	return writeJSON(w, e.metadata("coverage", "coverage", CoverageTitle), data)
}

// Inventory writes a category field inventory.
func (e *Exporter) Inventory(w io.Writer, inv *inventory.Inventory, f Format) error {
	if f == FormatCSV {
		header := []string{"field", "type", "has_null", "min", "max"}
		rows := make([][]string, 0, len(inv.Fields))
		for _, fi := range inv.Fields {
			rows = append(rows, []string{
				string(fi.Field),
				string(fi.Type),
				strconv.FormatBool(fi.HasNull),
				formatNull(fi.Min),
				formatNull(fi.Max),
			})
		}
		return writeCSV(w, header, rows)
	}

	title := fmt.Sprintf("Field Information for %s Records", inv.Category)
	return writeJSON(w, e.metadata("inventory", string(inv.Category), title), inv)
}

// Values writes a key → distinct values listing (state or feedback values).
func (e *Exporter) Values(w io.Writer, name, title string, values map[string][]string, f Format) error {
	if f == FormatCSV {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var rows [][]string
		for _, k := range keys {
			for _, v := range values[k] {
				rows = append(rows, []string{k, v})
			}
		}
		return writeCSV(w, []string{"key", "value"}, rows)
	}
	return writeJSON(w, e.metadata("values", name, title), values)
}
