// Package inventory introspects which fields a category carries: type,
// nullability and numeric range, plus the distinct values of the state
// and feedback messages.
package inventory

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/guregu/null"

	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/sensor"
)

// ErrNoPreset is returned for a category without a field preset.
var ErrNoPreset = errors.New("no inventory preset for category")

// Type is the inferred value type of a field.
type Type string

const (
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeString Type = "string"
)

// FieldInfo describes one field within a category. Min and Max are only
// valid for numeric fields with at least one non-null value.
type FieldInfo struct {
	Field   sensor.Field `json:"field"`
	Type    Type         `json:"type"`
	HasNull bool         `json:"has_null"`
	Min     null.Float   `json:"min"`
	Max     null.Float   `json:"max"`
}

// Inventory is the field report of one category.
type Inventory struct {
	Category sensor.Category `json:"category"`
	Fields   []FieldInfo     `json:"fields"`
}

// Preset names the fields reported for a category.
type Preset struct {
	Numeric []sensor.Field
	Other   []sensor.Field // booleans and text: type and nullability only
}

// Presets are the per-category field lists of the diagnostic report.
var Presets = map[sensor.Category]Preset{
	sensor.CategoryVarious: {
		Numeric: []sensor.Field{sensor.FieldTemperature, sensor.FieldLinkQuality, sensor.FieldHumidity, sensor.FieldPressure},
	},
	sensor.CategoryDoor: {
		Numeric: []sensor.Field{sensor.FieldLinkQuality, sensor.FieldBattery, sensor.FieldVoltage},
		Other:   []sensor.Field{sensor.FieldContact},
	},
	sensor.CategoryMovement: {
		Numeric: []sensor.Field{sensor.FieldIlluminance, sensor.FieldLinkQuality, sensor.FieldBattery, sensor.FieldVoltage},
		Other:   []sensor.Field{sensor.FieldOccupancy},
	},
	sensor.CategoryMeteo: {
		Numeric: []sensor.Field{sensor.FieldPrecipitation, sensor.FieldWindSpeed, sensor.FieldPressure, sensor.FieldHumidity, sensor.FieldTemperature},
		Other:   []sensor.Field{sensor.FieldDescription, sensor.FieldWindDirection},
	},
}

// Categories returns the categories that have a preset, sorted.
func Categories() []sensor.Category {
	out := make([]sensor.Category, 0, len(Presets))
	for c := range Presets {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// ForCategory reports the preset fields of category c.
func ForCategory(ds *dataset.Dataset, c sensor.Category) (*Inventory, error) {
	preset, ok := Presets[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoPreset, c)
	}

	records := ds.ByCategory(c)
	inv := &Inventory{Category: c}
	inv.Fields = append(inv.Fields, Numeric(records, preset.Numeric)...)
	for _, f := range preset.Other {
		inv.Fields = append(inv.Fields, describe(records, f))
	}
	return inv, nil
}

// Numeric describes numeric fields over records. A field that is null
// everywhere has no min/max and is reported as int.
func Numeric(records []sensor.Record, fields []sensor.Field) []FieldInfo {
	out := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		info := FieldInfo{Field: f, Type: TypeInt}
		lo, hi := math.Inf(1), math.Inf(-1)
		seen := false

		for i := range records {
			v, ok := records[i].Float(f)
			if !ok || math.IsNaN(v) {
				info.HasNull = true
				continue
			}
			seen = true
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			if v != math.Trunc(v) {
				info.Type = TypeFloat
			}
		}

		if seen {
			info.Min = null.FloatFrom(lo)
			info.Max = null.FloatFrom(hi)
		}
		out = append(out, info)
	}
	return out
}

// describe reports type and nullability of a boolean or text field.
func describe(records []sensor.Record, f sensor.Field) FieldInfo {
	info := FieldInfo{Field: f, Type: TypeString}
	if kind, ok := sensor.KindOf(f); ok && kind == sensor.KindBool {
		info.Type = TypeBool
	}
	for i := range records {
		if !records[i].Has(f) {
			info.HasNull = true
			break
		}
	}
	return info
}

// Keys of StateValues.
const (
	StateFeedback = "feedback"
	StateStatus   = "status"
	StateTenant   = "<tenant>"
)

// StateValues returns the distinct state values of system records for the
// feedback and status devices, and the union over devices named after a
// tenant (case-insensitive) under "<tenant>".
func StateValues(ds *dataset.Dataset) map[string][]string {
	tenants := ds.Tenants()
	sets := map[string]map[string]struct{}{
		StateFeedback: {},
		StateStatus:   {},
		StateTenant:   {},
	}

	for _, r := range ds.ByCategory(sensor.CategorySystem) {
		state, ok := r.Text(sensor.FieldState)
		if !ok {
			continue
		}
		key := ""
		switch {
		case r.Device == StateFeedback:
			key = StateFeedback
		case r.Device == StateStatus:
			key = StateStatus
		case isTenant(r.Device, tenants):
			key = StateTenant
		default:
			continue
		}
		sets[key][state] = struct{}{}
	}

	out := make(map[string][]string, len(sets))
	for k, set := range sets {
		out[k] = sorted(set)
	}
	return out
}

func isTenant(device string, tenants []string) bool {
	if device == "" {
		return false
	}
	for _, t := range tenants {
		if strings.EqualFold(device, t) {
			return true
		}
	}
	return false
}

// FeedbackValues returns the distinct feedback values per device.
func FeedbackValues(ds *dataset.Dataset) map[string][]string {
	sets := make(map[string]map[string]struct{})
	for _, r := range ds.ByCategory(sensor.CategoryFeedback) {
		v, ok := r.Text(sensor.FieldFeedback)
		if !ok {
			continue
		}
		if sets[r.Device] == nil {
			sets[r.Device] = make(map[string]struct{})
		}
		sets[r.Device][v] = struct{}{}
	}

	out := make(map[string][]string, len(sets))
	for device, set := range sets {
		out[device] = sorted(set)
	}
	return out
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
