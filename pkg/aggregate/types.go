package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

var (
	// ErrUnknownView is returned for a view name that is not registered.
	ErrUnknownView = errors.New("unknown aggregate view")

	// ErrDegenerate marks a table whose normalisation had a zero or
	// undefined maximum. It is reported through Table.Degenerate and
	// Table.Err, never returned as a failure.
	ErrDegenerate = errors.New("degenerate aggregate: maximum is zero or undefined")
)

// Granularity is the width of a resample bucket.
type Granularity int

const (
	Hour Granularity = iota
	Day
	Week // ISO week, Monday start
	Month
)

func (g Granularity) String() string {
	switch g {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	}
	return fmt.Sprintf("granularity(%d)", int(g))
}

// Truncate rounds t down to the start of its bucket, in UTC.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -mondayIndex(day.Weekday()))
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Next returns the start of the bucket after the one starting at start.
func (g Granularity) Next(start time.Time) time.Time {
	switch g {
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	}
	return start
}

// endAnchored reports whether buckets of g are named after the last day
// of their period (Sunday for weeks, month end for months) and close on
// the right.
func (g Granularity) endAnchored() bool {
	return g == Week || g == Month
}

// Label selects which bin edge names a bucket, and so which cyclical key
// it regroups under.
//
// Hour and day buckets are named by their start (left) or by the start
// of the next bucket (right). Week and month buckets are end-anchored:
// the left label is the last day of the preceding period, the right
// label the bucket's own last day. A January month bucket labelled left
// therefore regroups under December.
type Label int

const (
	LabelLeft Label = iota
	LabelRight
)

// StatKind is the per-bucket statistic of the resample stage.
type StatKind int

const (
	StatCount           StatKind = iota // rows in the bucket
	StatMean                            // mean of Field over rows that carry it
	StatDistinctTenants                 // distinct tenants among the rows
)

// Statistic is a per-bucket reduction.
type Statistic struct {
	Kind  StatKind
	Field sensor.Field // StatMean only
}

// Count returns the row count statistic.
func Count() Statistic { return Statistic{Kind: StatCount} }

// Mean returns the mean-of-field statistic.
func Mean(f sensor.Field) Statistic { return Statistic{Kind: StatMean, Field: f} }

// DistinctTenants returns the distinct tenant count statistic.
func DistinctTenants() Statistic { return Statistic{Kind: StatDistinctTenants} }

// fills reports whether empty buckets count as zero. Counting nothing is
// zero; averaging nothing is undefined, so mean buckets stay absent.
func (s Statistic) fills() bool {
	return s.Kind == StatCount || s.Kind == StatDistinctTenants
}

// Cycle is the repeating key of the regroup stage.
type Cycle int

const (
	CalendarMonth Cycle = iota // (year, month): not cyclical, one key per month
	MonthOfYear                // 1..12
	ISOWeek                    // 1..53
	HourOfDay                  // 0..23
	WeekdayHour                // (0=Monday..6, 0..23)
)

func (c Cycle) String() string {
	switch c {
	case CalendarMonth:
		return "calendar-month"
	case MonthOfYear:
		return "month-of-year"
	case ISOWeek:
		return "iso-week"
	case HourOfDay:
		return "hour-of-day"
	case WeekdayHour:
		return "weekday-hour"
	}
	return fmt.Sprintf("cycle(%d)", int(c))
}

// KeyOf returns the cyclical key of a bucket start.
func (c Cycle) KeyOf(t time.Time) Key {
	t = t.UTC()
	switch c {
	case CalendarMonth:
		return Key{A: t.Year(), B: int(t.Month())}
	case MonthOfYear:
		return Key{A: int(t.Month())}
	case ISOWeek:
		_, w := t.ISOWeek()
		return Key{A: w}
	case HourOfDay:
		return Key{A: t.Hour()}
	case WeekdayHour:
		return Key{A: mondayIndex(t.Weekday()), B: t.Hour()}
	}
	return Key{}
}

// Label renders a key for humans.
func (c Cycle) Label(k Key) string {
	switch c {
	case CalendarMonth:
		return time.Date(k.A, time.Month(k.B), 1, 0, 0, 0, 0, time.UTC).Format("Jan 06")
	case MonthOfYear:
		return time.Month(k.A).String()[:3]
	case ISOWeek:
		return fmt.Sprintf("W%02d", k.A)
	case HourOfDay:
		return fmt.Sprintf("%02d:00", k.A)
	case WeekdayHour:
		return fmt.Sprintf("%s %02d:00", weekdays[k.A], k.B)
	}
	return fmt.Sprintf("%d/%d", k.A, k.B)
}

var weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Reduction combines every bucket value that shares a key.
type Reduction int

const (
	ReduceMean    Reduction = iota
	ReduceMeanStd           // mean and population standard deviation
	ReduceSum
)

// Normalize rescales a regrouped series against its maximum.
type Normalize int

const (
	NormalizeNone  Normalize = iota
	RatioToMax               // v / max
	MissingRatio             // 1 - v / max
)

// Key is a cyclical group key. B is zero for single-component cycles.
type Key struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (k Key) less(o Key) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}

// Bucket is one resampled time bucket.
type Bucket struct {
	Start time.Time
	Label time.Time // regroup key source, see Label
	Value float64
	N     int // rows that contributed
}

// Row is one cyclical key of a table.
type Row struct {
	Key     Key
	Label   string
	Value   float64 // NaN when undefined
	Std     float64 // NaN unless the table has a dispersion band
	Samples int     // buckets reduced into this row

	// Occupancy is the occupancy ratio of the same key, NaN when the
	// table has no overlay.
	Occupancy float64
}

// Band returns [mean - std, mean + std].
func (r Row) Band() (float64, float64) {
	return r.Value - r.Std, r.Value + r.Std
}

// Table is an immutable aggregate result.
type Table struct {
	Name       string
	Title      string
	Cycle      Cycle
	Rows       []Row
	HasStd     bool
	HasOverlay bool

	// Degenerate is set when normalisation had no usable maximum; every
	// Value is NaN.
	Degenerate bool
}

// Err returns ErrDegenerate for degenerate tables, nil otherwise.
func (t *Table) Err() error {
	if t.Degenerate {
		return fmt.Errorf("%s: %w", t.Name, ErrDegenerate)
	}
	return nil
}

// Lookup returns the row for k.
func (t *Table) Lookup(k Key) (Row, bool) {
	for _, r := range t.Rows {
		if r.Key == k {
			return r, true
		}
	}
	return Row{}, false
}

// Max returns the largest finite value, NaN if there is none.
func (t *Table) Max() float64 {
	return maxFinite(t.Rows)
}

func maxFinite(rows []Row) float64 {
	m := math.NaN()
	for _, r := range rows {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		if math.IsNaN(m) || r.Value > m {
			m = r.Value
		}
	}
	return m
}
