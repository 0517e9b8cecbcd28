package aggregate

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/telemetry"
)

var cutoff = time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)

func raw(r sensor.Record, tag string) sensor.Record {
	r.Raw = tag + r.Timestamp.Format(time.RFC3339)
	r.Category = sensor.CategoryUnknown
	return r
}

func newEngine(t *testing.T, records []sensor.Record) *Engine {
	t.Helper()
	ds, err := dataset.FromRecords(records, cutoff)
	require.NoError(t, err)
	return NewEngine(ds, nil)
}

func TestEngine_UnknownView(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Compute(context.Background(), "average-pressure-by-decade", Options{})
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestEngine_Names(t *testing.T) {
	names := Names()
	assert.Len(t, names, 11)
	for _, n := range names {
		v, ok := Lookup(n)
		require.True(t, ok)
		assert.Equal(t, n, v.Name)
		assert.NotEmpty(t, v.Title)
	}
}

func TestEngine_CoverageByMonth(t *testing.T) {
	var records []sensor.Record
	// March: 4 rows a day for 31 days; April: 1 row a day for 30 days
	for d := 0; d < 31; d++ {
		for h := 0; h < 4; h++ {
			records = append(records, raw(temp(ts(2019, 3, 1+d, h+1), "a", 20), "m"))
		}
	}
	for d := 0; d < 30; d++ {
		records = append(records, raw(sensor.Record{Timestamp: ts(2019, 4, 1+d, 12), Tenant: "a", Contact: null.BoolFrom(true)}, "a"))
	}

	table, err := newEngine(t, records).Compute(context.Background(), ViewRelativeAmountDataByMonth, Options{})
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, Key{A: 2019, B: 3}, table.Rows[0].Key)
	assert.Equal(t, 0.0, table.Rows[0].Value, "best covered month")
	assert.InDelta(t, 0.75, table.Rows[1].Value, 1e-9)
	for _, r := range table.Rows {
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.LessOrEqual(t, r.Value, 1.0)
	}
}

func TestEngine_OccupancyRatio(t *testing.T) {
	records := []sensor.Record{
		raw(occ(ts(2019, 3, 4, 8), "a", true), "1"),
		raw(occ(ts(2019, 3, 4, 8), "b", true), "2"),
		raw(occ(ts(2019, 3, 5, 8), "a", true), "3"),
		raw(occ(ts(2019, 3, 4, 20), "a", true), "4"),
		// explicit false never counts as presence
		raw(occ(ts(2019, 3, 4, 20), "b", false), "5"),
		raw(occ(ts(2019, 3, 4, 21), "c", false), "6"),
		// absent occupancy is not false either, and not presence
		raw(sensor.Record{Timestamp: ts(2019, 3, 4, 21), Tenant: "c", Illuminance: null.FloatFrom(3)}, "7"),
	}

	table, err := newEngine(t, records).Compute(context.Background(), ViewRelativeOccupancyByHour, Options{})
	require.NoError(t, err)
	require.False(t, table.Degenerate)

	peak := 0
	for _, r := range table.Rows {
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.LessOrEqual(t, r.Value, 1.0)
		if r.Value == 1 {
			peak++
		}
	}
	assert.Equal(t, 1, peak)

	eight, ok := table.Lookup(Key{A: 8})
	require.True(t, ok)
	assert.Equal(t, 1.0, eight.Value) // 2 + 1 tenants
	twenty, ok := table.Lookup(Key{A: 20})
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, twenty.Value, 1e-9)
	// hour 21 only saw false and absent occupancy
	late, ok := table.Lookup(Key{A: 21})
	require.True(t, ok)
	assert.Equal(t, 0.0, late.Value)
}

func TestEngine_OccupancyNeverTrueIsDegenerate(t *testing.T) {
	records := []sensor.Record{
		raw(occ(ts(2019, 3, 4, 8), "a", false), "1"),
		raw(occ(ts(2019, 3, 4, 9), "b", false), "2"),
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	e := newEngine(t, records)
	e.SetMetrics(metrics)

	table, err := e.Compute(context.Background(), ViewRelativeOccupancyByHourWeek, Options{})
	require.NoError(t, err, "degenerate results are not failures")
	assert.True(t, table.Degenerate)
	assert.ErrorIs(t, table.Err(), ErrDegenerate)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AggregateDegenerate.WithLabelValues(ViewRelativeOccupancyByHourWeek)))
}

func TestEngine_TemperatureByHourUsesVariousOnly(t *testing.T) {
	records := []sensor.Record{
		raw(temp(ts(2019, 3, 2, 0), "a", 10), "1"),
		raw(temp(ts(2019, 3, 2, 1), "a", 20), "2"),
		raw(temp(ts(2019, 3, 3, 0), "a", 20), "3"),
		raw(temp(ts(2019, 3, 3, 1), "a", 10), "4"),
		// outdoor station: temperature with description, not various
		raw(sensor.Record{Timestamp: ts(2019, 3, 2, 0), Tenant: "a", Temperature: null.FloatFrom(-5), Description: null.StringFrom("snow")}, "5"),
	}
	e := newEngine(t, records)

	plain, err := e.Compute(context.Background(), ViewAverageTemperatureByHour, Options{})
	require.NoError(t, err)
	assert.False(t, plain.HasStd)
	assert.Equal(t, "Average Temperature by Hour", plain.Title)
	require.Len(t, plain.Rows, 2)
	assert.Equal(t, 15.0, plain.Rows[0].Value)
	assert.True(t, math.IsNaN(plain.Rows[0].Std))

	withStd, err := e.Compute(context.Background(), ViewAverageTemperatureByHour, Options{WithStd: true})
	require.NoError(t, err)
	assert.True(t, withStd.HasStd)
	assert.Contains(t, withStd.Title, "Standard Deviation")
	for _, r := range withStd.Rows {
		assert.Equal(t, 15.0, r.Value)
		assert.InDelta(t, 5.0, r.Std, 1e-9)
	}
}

func TestEngine_TemperatureWithOccupancyOverlay(t *testing.T) {
	records := []sensor.Record{
		raw(temp(ts(2019, 3, 4, 8), "a", 19), "1"),
		raw(temp(ts(2019, 3, 4, 9), "a", 21), "2"),
		raw(occ(ts(2019, 3, 4, 8), "a", true), "3"),
	}

	table, err := newEngine(t, records).Compute(context.Background(), ViewAverageTemperatureByHourWeekWithOccupancy, Options{})
	require.NoError(t, err)
	require.True(t, table.HasOverlay)
	require.Len(t, table.Rows, 2)

	assert.Equal(t, Key{A: 0, B: 8}, table.Rows[0].Key)
	assert.Equal(t, 1.0, table.Rows[0].Occupancy)
	assert.Equal(t, 0.0, table.Rows[1].Occupancy)
}

func TestEngine_MonthAndWeekDoubleAverage(t *testing.T) {
	records := []sensor.Record{
		// March 2019: one reading of 10
		raw(temp(ts(2019, 3, 10, 0), "a", 10), "1"),
		// March 2020: many readings of 20 weigh as one month
		raw(temp(ts(2020, 3, 10, 0), "a", 20), "2"),
		raw(temp(ts(2020, 3, 11, 0), "a", 20), "3"),
		raw(temp(ts(2020, 3, 12, 0), "a", 20), "4"),
	}
	e := newEngine(t, records)

	month, err := e.Compute(context.Background(), ViewAverageTemperatureByMonth, Options{})
	require.NoError(t, err)
	require.Len(t, month.Rows, 1)
	// left-labelled: March buckets are named after Feb 28/29
	assert.Equal(t, Key{A: 2}, month.Rows[0].Key)
	assert.Equal(t, "Feb", month.Rows[0].Label)
	assert.Equal(t, 15.0, month.Rows[0].Value)
	assert.Equal(t, 2, month.Rows[0].Samples)
}

func TestEngine_WeekDoubleAverage(t *testing.T) {
	records := []sensor.Record{
		// Mon Mar 11 2019, labelled Sun Mar 10 2019: ISO week 10
		raw(temp(ts(2019, 3, 11, 6), "a", 10), "1"),
		// Mon Mar 9 2020, labelled Sun Mar 8 2020: ISO week 10
		raw(temp(ts(2020, 3, 9, 6), "a", 20), "2"),
		raw(temp(ts(2020, 3, 10, 6), "a", 20), "3"),
		raw(temp(ts(2020, 3, 11, 6), "a", 20), "4"),
	}

	table, err := newEngine(t, records).Compute(context.Background(), ViewAverageTemperatureByWeek, Options{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, Key{A: 10}, table.Rows[0].Key)
	assert.Equal(t, 15.0, table.Rows[0].Value)
	assert.Equal(t, 2, table.Rows[0].Samples)
}

func TestEngine_MonthAndWeekKeys(t *testing.T) {
	tests := []struct {
		name  string
		view  string
		at    time.Time
		key   Key
		label string
	}{
		{"january month", ViewAverageTemperatureByMonth, ts(2020, 1, 15, 12), Key{A: 12}, "Dec"},
		{"last day of month", ViewAverageTemperatureByMonth, ts(2019, 3, 31, 23), Key{A: 2}, "Feb"},
		{"first day of month", ViewAverageHumidityByMonth, ts(2019, 4, 1, 0), Key{A: 3}, "Mar"},
		{"sunday", ViewAverageTemperatureByWeek, ts(2019, 3, 10, 12), Key{A: 9}, "W09"},
		{"monday after", ViewAverageTemperatureByWeek, ts(2019, 3, 11, 0), Key{A: 10}, "W10"},
		{"year boundary", ViewAverageHumidityByWeek, ts(2020, 1, 2, 12), Key{A: 52}, "W52"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := temp(tt.at, "a", 20)
			r.Humidity = null.FloatFrom(40)
			e := newEngine(t, []sensor.Record{raw(r, "k")})

			table, err := e.Compute(context.Background(), tt.view, Options{})
			require.NoError(t, err)
			require.Len(t, table.Rows, 1)
			assert.Equal(t, tt.key, table.Rows[0].Key)
			assert.Equal(t, tt.label, table.Rows[0].Label)
		})
	}
}

func TestEngine_ComputeAll(t *testing.T) {
	records := []sensor.Record{
		raw(temp(ts(2019, 3, 4, 8), "a", 19), "1"),
		raw(sensor.Record{Timestamp: ts(2019, 3, 4, 8), Tenant: "a", Humidity: null.FloatFrom(40), Temperature: null.FloatFrom(19.5)}, "2"),
	}
	e := newEngine(t, records)
	e.SetParallelism(2)

	res := e.ComputeAll(context.Background(), Options{WithStd: true})
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Tables, 11)

	// no occupancy in the data: those views are degenerate, the rest are not
	assert.True(t, res.Tables[ViewRelativeOccupancyByHour].Degenerate)
	assert.False(t, res.Tables[ViewAverageTemperatureByHour].Degenerate)
	assert.True(t, res.Tables[ViewAverageTemperatureByHourWithOccupancy].HasStd)
}

func TestEngine_ComputeAllCancelled(t *testing.T) {
	e := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.ComputeAll(ctx, Options{})
	assert.Empty(t, res.Tables)
	assert.Len(t, res.Errors, 11)
	for _, err := range res.Errors {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
