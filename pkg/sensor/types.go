package sensor

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/guregu/null"
)

// Field names a payload attribute.
type Field string

const (
	FieldState         Field = "state"
	FieldFeedback      Field = "feedback"
	FieldTemperature   Field = "temperature"
	FieldHumidity      Field = "humidity"
	FieldPressure      Field = "pressure"
	FieldLinkQuality   Field = "linkquality"
	FieldDescription   Field = "description"
	FieldContact       Field = "contact"
	FieldIlluminance   Field = "illuminance"
	FieldOccupancy     Field = "occupancy"
	FieldWindSpeed     Field = "windspeed"
	FieldWindDirection Field = "winddirection"
	FieldPrecipitation Field = "precipitation"
	FieldBattery       Field = "battery"
	FieldVoltage       Field = "voltage"
	FieldDevice        Field = "device"
)

// Kind is the value type carried by a field.
type Kind string

const (
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
)

var fieldKinds = map[Field]Kind{
	FieldState:         KindString,
	FieldFeedback:      KindString,
	FieldTemperature:   KindFloat,
	FieldHumidity:      KindFloat,
	FieldPressure:      KindFloat,
	FieldLinkQuality:   KindFloat,
	FieldDescription:   KindString,
	FieldContact:       KindBool,
	FieldIlluminance:   KindFloat,
	FieldOccupancy:     KindBool,
	FieldWindSpeed:     KindFloat,
	FieldWindDirection: KindString,
	FieldPrecipitation: KindFloat,
	FieldBattery:       KindFloat,
	FieldVoltage:       KindFloat,
	FieldDevice:        KindString,
}

// KindOf reports the value type of a known field.
func KindOf(f Field) (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// Category is the derived sensor kind of a record.
type Category string

const (
	CategoryUnknown  Category = ""
	CategorySystem   Category = "system"
	CategoryMeteo    Category = "meteo"
	CategoryVarious  Category = "various"
	CategoryDoor     Category = "door"
	CategoryMovement Category = "movement"
	CategoryFeedback Category = "feedback"
	CategoryOther    Category = "other"
)

// Categories lists every assignable category in classification order.
var Categories = []Category{
	CategorySystem,
	CategoryMeteo,
	CategoryVarious,
	CategoryDoor,
	CategoryMovement,
	CategoryFeedback,
	CategoryOther,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryUnknown, false
}

// Record is one observation from one tenant.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Tenant    string    `json:"tenant"`
	Device    string    `json:"device,omitempty"`

	State         null.String `json:"state"`
	Feedback      null.String `json:"feedback"`
	Temperature   null.Float  `json:"temperature"`
	Humidity      null.Float  `json:"humidity"`
	Pressure      null.Float  `json:"pressure"`
	LinkQuality   null.Float  `json:"linkquality"`
	Description   null.String `json:"description"`
	Contact       null.Bool   `json:"contact"`
	Illuminance   null.Float  `json:"illuminance"`
	Occupancy     null.Bool   `json:"occupancy"`
	WindSpeed     null.Float  `json:"windspeed"`
	WindDirection null.String `json:"winddirection"`
	Precipitation null.Float  `json:"precipitation"`
	Battery       null.Float  `json:"battery"`
	Voltage       null.Float  `json:"voltage"`

	// Extra keeps payload attributes without a typed field, raw JSON text.
	Extra map[string]string `json:"extra,omitempty"`

	// Raw is the payload as read from the source.
	Raw string `json:"raw"`

	Category Category `json:"category,omitempty"`
}

// Has reports whether the field is populated.
func (r *Record) Has(f Field) bool {
	switch f {
	case FieldState:
		return r.State.Valid
	case FieldFeedback:
		return r.Feedback.Valid
	case FieldTemperature:
		return r.Temperature.Valid
	case FieldHumidity:
		return r.Humidity.Valid
	case FieldPressure:
		return r.Pressure.Valid
	case FieldLinkQuality:
		return r.LinkQuality.Valid
	case FieldDescription:
		return r.Description.Valid
	case FieldContact:
		return r.Contact.Valid
	case FieldIlluminance:
		return r.Illuminance.Valid
	case FieldOccupancy:
		return r.Occupancy.Valid
	case FieldWindSpeed:
		return r.WindSpeed.Valid
	case FieldWindDirection:
		return r.WindDirection.Valid
	case FieldPrecipitation:
		return r.Precipitation.Valid
	case FieldBattery:
		return r.Battery.Valid
	case FieldVoltage:
		return r.Voltage.Valid
	case FieldDevice:
		return r.Device != ""
	}
	_, ok := r.Extra[string(f)]
	return ok
}

// Float returns a numeric field value. ok is false when the field is
// absent or not numeric.
func (r *Record) Float(f Field) (float64, bool) {
	var v null.Float
	switch f {
	case FieldTemperature:
		v = r.Temperature
	case FieldHumidity:
		v = r.Humidity
	case FieldPressure:
		v = r.Pressure
	case FieldLinkQuality:
		v = r.LinkQuality
	case FieldIlluminance:
		v = r.Illuminance
	case FieldWindSpeed:
		v = r.WindSpeed
	case FieldPrecipitation:
		v = r.Precipitation
	case FieldBattery:
		v = r.Battery
	case FieldVoltage:
		v = r.Voltage
	default:
		return 0, false
	}
	return v.Float64, v.Valid
}

// Bool returns a boolean field value.
func (r *Record) Bool(f Field) (bool, bool) {
	switch f {
	case FieldContact:
		return r.Contact.Bool, r.Contact.Valid
	case FieldOccupancy:
		return r.Occupancy.Bool, r.Occupancy.Valid
	}
	return false, false
}

// Text returns a text field value.
func (r *Record) Text(f Field) (string, bool) {
	switch f {
	case FieldState:
		return r.State.String, r.State.Valid
	case FieldFeedback:
		return r.Feedback.String, r.Feedback.Valid
	case FieldDescription:
		return r.Description.String, r.Description.Valid
	case FieldWindDirection:
		return r.WindDirection.String, r.WindDirection.Valid
	case FieldDevice:
		return r.Device, r.Device != ""
	}
	v, ok := r.Extra[string(f)]
	return v, ok
}

// Occupied is true only for an explicit occupancy=true. Absent and false
// are both "not occupied" here but stay distinct on the record.
func (r *Record) Occupied() bool {
	return r.Occupancy.Valid && r.Occupancy.Bool
}

// Identity is the full uniqueness tuple of a record. It is comparable and
// safe as a map key; Key is its hash.
type Identity struct {
	Unix   int64
	Tenant string
	Device string
	Raw    string
}

// Identity returns the uniqueness tuple of r.
func (r *Record) Identity() Identity {
	return Identity{Unix: r.Timestamp.Unix(), Tenant: r.Tenant, Device: r.Device, Raw: r.Raw}
}

// Key is the 64-bit hash of Identity, used where a fixed-width key is
// needed. Two records can share a Key without being duplicates; compare
// Identity to decide.
func (r *Record) Key() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatInt(r.Timestamp.Unix(), 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(r.Tenant)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(r.Device)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(r.Raw)
	return d.Sum64()
}
