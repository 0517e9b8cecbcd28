package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

func ts(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func temp(t time.Time, tenant string, v float64) sensor.Record {
	return sensor.Record{Timestamp: t, Tenant: tenant, Temperature: null.FloatFrom(v), Category: sensor.CategoryVarious}
}

func occ(t time.Time, tenant string, v bool) sensor.Record {
	return sensor.Record{Timestamp: t, Tenant: tenant, Occupancy: null.BoolFrom(v), Illuminance: null.FloatFrom(1), Category: sensor.CategoryMovement}
}

func TestGranularity_Truncate(t *testing.T) {
	at := time.Date(2019, 3, 7, 13, 45, 10, 0, time.UTC) // Thursday

	assert.Equal(t, ts(2019, 3, 7, 13), Hour.Truncate(at))
	assert.Equal(t, ts(2019, 3, 7, 0), Day.Truncate(at))
	assert.Equal(t, ts(2019, 3, 4, 0), Week.Truncate(at), "ISO weeks start on Monday")
	assert.Equal(t, ts(2019, 3, 1, 0), Month.Truncate(at))

	sunday := ts(2019, 3, 10, 23)
	assert.Equal(t, ts(2019, 3, 4, 0), Week.Truncate(sunday))

	assert.Equal(t, ts(2019, 4, 1, 0), Month.Next(ts(2019, 3, 1, 0)))
	assert.Equal(t, ts(2019, 3, 11, 0), Week.Next(ts(2019, 3, 4, 0)))
}

func TestCycle_Keys(t *testing.T) {
	monday1pm := ts(2019, 3, 4, 13)
	sunday := ts(2019, 3, 10, 5)

	assert.Equal(t, Key{A: 2019, B: 3}, CalendarMonth.KeyOf(monday1pm))
	assert.Equal(t, Key{A: 3}, MonthOfYear.KeyOf(monday1pm))
	assert.Equal(t, Key{A: 10}, ISOWeek.KeyOf(monday1pm))
	assert.Equal(t, Key{A: 13}, HourOfDay.KeyOf(monday1pm))
	assert.Equal(t, Key{A: 0, B: 13}, WeekdayHour.KeyOf(monday1pm))
	assert.Equal(t, Key{A: 6, B: 5}, WeekdayHour.KeyOf(sunday))

	assert.Equal(t, "Mar 19", CalendarMonth.Label(Key{A: 2019, B: 3}))
	assert.Equal(t, "Mar", MonthOfYear.Label(Key{A: 3}))
	assert.Equal(t, "W10", ISOWeek.Label(Key{A: 10}))
	assert.Equal(t, "07:00", HourOfDay.Label(Key{A: 7}))
	assert.Equal(t, "Sun 05:00", WeekdayHour.Label(Key{A: 6, B: 5}))
}

func TestResample_CountFillsGaps(t *testing.T) {
	records := []sensor.Record{
		temp(ts(2019, 3, 2, 1), "a", 1),
		temp(ts(2019, 3, 2, 2), "a", 1),
		temp(ts(2019, 3, 5, 0), "a", 1),
	}

	p := Pipeline{Granularity: Day, Statistic: Count()}
	buckets := p.Resample(records)

	require.Len(t, buckets, 4)
	values := []float64{buckets[0].Value, buckets[1].Value, buckets[2].Value, buckets[3].Value}
	assert.Equal(t, []float64{2, 0, 0, 1}, values)
	assert.Equal(t, ts(2019, 3, 3, 0), buckets[1].Start)
}

func TestResample_MeanSkipsEmptyAndAbsent(t *testing.T) {
	records := []sensor.Record{
		temp(ts(2019, 3, 2, 1), "a", 10),
		{Timestamp: ts(2019, 3, 2, 1), Tenant: "a", Humidity: null.FloatFrom(40)},
		{Timestamp: ts(2019, 3, 3, 1), Tenant: "a", Humidity: null.FloatFrom(40)},
		temp(ts(2019, 3, 4, 1), "a", 20),
		temp(ts(2019, 3, 4, 5), "a", 30),
	}

	p := Pipeline{Granularity: Day, Statistic: Mean(sensor.FieldTemperature)}
	buckets := p.Resample(records)

	require.Len(t, buckets, 2, "a day without temperature is skipped, not zero")
	assert.Equal(t, 10.0, buckets[0].Value)
	assert.Equal(t, 1, buckets[0].N)
	assert.Equal(t, 25.0, buckets[1].Value)
}

func TestResample_Labels(t *testing.T) {
	tests := []struct {
		name  string
		g     Granularity
		at    time.Time
		left  time.Time
		right time.Time
	}{
		{"hour", Hour, ts(2019, 3, 15, 1), ts(2019, 3, 15, 1), ts(2019, 3, 15, 2)},
		{"day", Day, ts(2019, 3, 15, 1), ts(2019, 3, 15, 0), ts(2019, 3, 16, 0)},
		{"month", Month, ts(2019, 3, 15, 1), ts(2019, 2, 28, 0), ts(2019, 3, 31, 0)},
		{"month january", Month, ts(2020, 1, 15, 0), ts(2019, 12, 31, 0), ts(2020, 1, 31, 0)},
		{"week", Week, ts(2019, 3, 7, 1), ts(2019, 3, 3, 0), ts(2019, 3, 10, 0)},
		{"week sunday", Week, ts(2019, 3, 10, 23), ts(2019, 3, 3, 0), ts(2019, 3, 10, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []sensor.Record{temp(tt.at, "a", 1)}

			left := Pipeline{Granularity: tt.g, Statistic: Count()}.Resample(records)
			right := Pipeline{Granularity: tt.g, Statistic: Count(), Label: LabelRight}.Resample(records)

			require.Len(t, left, 1)
			require.Len(t, right, 1)
			assert.Equal(t, tt.left, left[0].Label)
			assert.Equal(t, tt.right, right[0].Label)
			assert.Equal(t, left[0].Start, right[0].Start)
		})
	}
}

func TestRegroup_KeysFollowLabel(t *testing.T) {
	records := []sensor.Record{temp(ts(2020, 1, 15, 0), "a", 1)}

	left := Pipeline{Granularity: Month, Statistic: Count(), Cycle: MonthOfYear}.Run(records)
	right := Pipeline{Granularity: Month, Statistic: Count(), Cycle: MonthOfYear, Label: LabelRight}.Run(records)

	require.Len(t, left.Rows, 1)
	require.Len(t, right.Rows, 1)
	assert.Equal(t, Key{A: 12}, left.Rows[0].Key)
	assert.Equal(t, Key{A: 1}, right.Rows[0].Key)
}

func TestResample_DistinctTenants(t *testing.T) {
	records := []sensor.Record{
		occ(ts(2019, 3, 2, 8), "a", true),
		occ(ts(2019, 3, 2, 8), "a", true),
		occ(ts(2019, 3, 2, 8), "b", true),
		occ(ts(2019, 3, 2, 10), "c", true),
	}

	p := Pipeline{Granularity: Hour, Statistic: DistinctTenants()}
	buckets := p.Resample(records)

	require.Len(t, buckets, 3)
	assert.Equal(t, 2.0, buckets[0].Value)
	assert.Equal(t, 0.0, buckets[1].Value)
	assert.Equal(t, 1.0, buckets[2].Value)
}

// Two days of hourly readings alternating 10 and 20.
func TestPipeline_RoundTripMeanStd(t *testing.T) {
	records := []sensor.Record{
		temp(ts(2019, 3, 2, 0), "a", 10),
		temp(ts(2019, 3, 2, 1), "a", 20),
		temp(ts(2019, 3, 3, 0), "a", 20),
		temp(ts(2019, 3, 3, 1), "a", 10),
	}

	p := Pipeline{
		Granularity: Hour,
		Statistic:   Mean(sensor.FieldTemperature),
		Cycle:       HourOfDay,
		Reduction:   ReduceMeanStd,
	}
	table := p.Run(records)

	require.Len(t, table.Rows, 2)
	assert.True(t, table.HasStd)
	for _, row := range table.Rows {
		assert.Equal(t, 15.0, row.Value, "hour %s", row.Label)
		assert.InDelta(t, 5.0, row.Std, 1e-9, "population std")
		assert.Equal(t, 2, row.Samples)

		lo, hi := row.Band()
		assert.InDelta(t, 10.0, lo, 1e-9)
		assert.InDelta(t, 20.0, hi, 1e-9)
	}
}

func TestRegroup_Normalize(t *testing.T) {
	buckets := []Bucket{
		{Start: ts(2019, 3, 2, 8), Label: ts(2019, 3, 2, 8), Value: 2},
		{Start: ts(2019, 3, 3, 8), Label: ts(2019, 3, 3, 8), Value: 2},
		{Start: ts(2019, 3, 2, 9), Label: ts(2019, 3, 2, 9), Value: 1},
		{Start: ts(2019, 3, 2, 10), Label: ts(2019, 3, 2, 10), Value: 0},
	}

	ratio := Pipeline{Cycle: HourOfDay, Reduction: ReduceSum, Normalize: RatioToMax}.Regroup(buckets)
	require.Len(t, ratio.Rows, 3)
	assert.Equal(t, []float64{1, 0.25, 0}, rowValues(ratio))
	assert.False(t, ratio.Degenerate)
	assert.NoError(t, ratio.Err())

	missing := Pipeline{Cycle: HourOfDay, Reduction: ReduceSum, Normalize: MissingRatio}.Regroup(buckets)
	assert.Equal(t, []float64{0, 0.75, 1}, rowValues(missing))
}

func TestRegroup_ZeroMaxIsDegenerate(t *testing.T) {
	buckets := []Bucket{
		{Start: ts(2019, 3, 2, 8), Label: ts(2019, 3, 2, 8), Value: 0},
		{Start: ts(2019, 3, 2, 9), Label: ts(2019, 3, 2, 9), Value: 0},
	}

	table := Pipeline{Cycle: HourOfDay, Reduction: ReduceSum, Normalize: RatioToMax}.Regroup(buckets)

	require.Len(t, table.Rows, 2)
	assert.True(t, table.Degenerate)
	assert.ErrorIs(t, table.Err(), ErrDegenerate)
	for _, row := range table.Rows {
		assert.True(t, math.IsNaN(row.Value), "never a disguised zero")
	}
}

func TestRegroup_NoBucketsIsDegenerateWhenNormalized(t *testing.T) {
	table := Pipeline{Cycle: HourOfDay, Reduction: ReduceSum, Normalize: RatioToMax}.Regroup(nil)
	assert.Empty(t, table.Rows)
	assert.True(t, table.Degenerate)

	plain := Pipeline{Cycle: HourOfDay, Reduction: ReduceMean}.Regroup(nil)
	assert.False(t, plain.Degenerate)
}

func TestOverlayOccupancy(t *testing.T) {
	temps := &Table{Rows: []Row{{Key: Key{A: 8}, Value: 20}, {Key: Key{A: 9}, Value: 21}}}
	occupancy := &Table{Rows: []Row{{Key: Key{A: 8}, Value: 0.5}}}

	temps.OverlayOccupancy(occupancy)
	assert.True(t, temps.HasOverlay)
	assert.Equal(t, 0.5, temps.Rows[0].Occupancy)
	assert.Equal(t, 0.0, temps.Rows[1].Occupancy)

	degenerate := &Table{Degenerate: true}
	temps.OverlayOccupancy(degenerate)
	assert.True(t, math.IsNaN(temps.Rows[0].Occupancy))
}

func rowValues(t *Table) []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Value
	}
	return out
}
