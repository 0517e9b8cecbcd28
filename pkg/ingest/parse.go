package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/relvacode/iso8601"
	"github.com/tidwall/gjson"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

const (
	columnDate = "date"
	columnInfo = "info"
)

// fallback layouts for timestamps iso8601 rejects
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse reads one tenant's rows. The stream must have a header with at
// least the date and info columns; info holds a JSON object whose
// attributes, flattened, become the record's fields.
func Parse(r io.Reader, tenant string) ([]sensor.Record, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty source, no header", ErrMalformedRow)
		}
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedRow, err)
	}

	dateIdx, infoIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case columnDate:
			dateIdx = i
		case columnInfo:
			infoIdx = i
		}
	}
	if dateIdx < 0 || infoIdx < 0 {
		return nil, fmt.Errorf("%w: header must contain %q and %q, got %v", ErrMalformedRow, columnDate, columnInfo, header)
	}

	var records []sensor.Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &IngestionError{Line: line, Err: fmt.Errorf("%w: %v", ErrMalformedRow, err)}
		}

		rec, err := parseRow(header, row, dateIdx, infoIdx, tenant)
		if err != nil {
			return nil, &IngestionError{Line: line, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(header, row []string, dateIdx, infoIdx int, tenant string) (sensor.Record, error) {
	ts, err := ParseTimestamp(row[dateIdx])
	if err != nil {
		return sensor.Record{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}

	raw := row[infoIdx]
	if err := ValidatePayload(raw); err != nil {
		return sensor.Record{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if !gjson.Valid(raw) {
		return sensor.Record{}, fmt.Errorf("%w: info is not valid JSON", ErrMalformedRow)
	}
	payload := gjson.Parse(raw)
	if !payload.IsObject() {
		return sensor.Record{}, fmt.Errorf("%w: info is not a JSON object", ErrMalformedRow)
	}

	rec := sensor.Record{
		Timestamp: ts,
		Tenant:    tenant,
		Raw:       raw,
	}

	fields := make(map[string]gjson.Result)
	for i, name := range header {
		if i == dateIdx || i == infoIdx || i >= len(row) {
			continue
		}
		v := row[i]
		if v == "" {
			continue
		}
		fields[strings.TrimSpace(name)] = gjson.Result{Type: gjson.String, Str: v, Raw: strconv.Quote(v)}
	}
	// payload attributes win over scalar columns of the same name
	Flatten("", payload, fields)
	if err := ValidateFields(fields); err != nil {
		return sensor.Record{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}

	for name, v := range fields {
		assign(&rec, name, v)
	}
	return rec, nil
}

// ParseTimestamp accepts ISO-8601 with a T or space separator and an
// optional offset. The result is UTC at second precision.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	normalized := s
	if len(s) > 10 && s[10] == ' ' {
		normalized = s[:10] + "T" + s[11:]
	}
	if t, err := iso8601.ParseString(normalized); err == nil {
		return t.UTC().Truncate(time.Second), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Flatten walks a JSON object and stores every leaf under its dotted
// path. Nested objects disappear; null leaves are kept so callers can
// tell "present but null" from "absent" if they need to.
func Flatten(prefix string, obj gjson.Result, out map[string]gjson.Result) {
	obj.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if prefix != "" {
			name = prefix + "." + name
		}
		if v.IsObject() {
			Flatten(name, v, out)
			return true
		}
		out[name] = v
		return true
	})
}

func assign(rec *sensor.Record, name string, v gjson.Result) {
	if v.Type == gjson.Null {
		return
	}
	field := sensor.Field(name)
	kind, known := sensor.KindOf(field)
	if !known {
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[name] = v.Raw
		return
	}

	switch kind {
	case sensor.KindFloat:
		f, ok := toFloat(v)
		if !ok {
			keepExtra(rec, name, v)
			return
		}
		setFloat(rec, field, null.FloatFrom(f))
	case sensor.KindBool:
		b, ok := toBool(v)
		if !ok {
			keepExtra(rec, name, v)
			return
		}
		setBool(rec, field, null.BoolFrom(b))
	case sensor.KindString:
		s := v.Raw
		if v.Type == gjson.String {
			s = v.Str
		}
		setString(rec, field, s)
	}
}

func keepExtra(rec *sensor.Record, name string, v gjson.Result) {
	if rec.Extra == nil {
		rec.Extra = make(map[string]string)
	}
	rec.Extra[name] = v.Raw
}

func toFloat(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v gjson.Result) (bool, bool) {
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		return b, err == nil
	}
	return false, false
}

func setFloat(rec *sensor.Record, f sensor.Field, v null.Float) {
	switch f {
	case sensor.FieldTemperature:
		rec.Temperature = v
	case sensor.FieldHumidity:
		rec.Humidity = v
	case sensor.FieldPressure:
		rec.Pressure = v
	case sensor.FieldLinkQuality:
		rec.LinkQuality = v
	case sensor.FieldIlluminance:
		rec.Illuminance = v
	case sensor.FieldWindSpeed:
		rec.WindSpeed = v
	case sensor.FieldPrecipitation:
		rec.Precipitation = v
	case sensor.FieldBattery:
		rec.Battery = v
	case sensor.FieldVoltage:
		rec.Voltage = v
	}
}

func setBool(rec *sensor.Record, f sensor.Field, v null.Bool) {
	switch f {
	case sensor.FieldContact:
		rec.Contact = v
	case sensor.FieldOccupancy:
		rec.Occupancy = v
	}
}

func setString(rec *sensor.Record, f sensor.Field, s string) {
	switch f {
	case sensor.FieldDevice:
		rec.Device = s
	case sensor.FieldState:
		rec.State = null.StringFrom(s)
	case sensor.FieldFeedback:
		rec.Feedback = null.StringFrom(s)
	case sensor.FieldDescription:
		rec.Description = null.StringFrom(s)
	case sensor.FieldWindDirection:
		rec.WindDirection = null.StringFrom(s)
	}
}
