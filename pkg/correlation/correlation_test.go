package correlation

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/sensor"
)

var cutoff = time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)

func day(d, h int) time.Time {
	return time.Date(2019, 3, d, h, 0, 0, 0, time.UTC)
}

func reading(ts time.Time, tenant string, temp float64) sensor.Record {
	return sensor.Record{
		Timestamp:   ts,
		Tenant:      tenant,
		Temperature: null.FloatFrom(temp),
		Raw:         fmt.Sprintf("t%v", temp),
	}
}

func presence(ts time.Time, tenant string, occupied bool) sensor.Record {
	return sensor.Record{
		Timestamp:   ts,
		Tenant:      tenant,
		Illuminance: null.FloatFrom(5),
		Occupancy:   null.BoolFrom(occupied),
		Raw:         fmt.Sprintf("o%v", occupied),
	}
}

func build(t *testing.T, records []sensor.Record) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRecords(records, cutoff)
	require.NoError(t, err)
	return ds
}

func assertSymmetric(t *testing.T, m *Matrix) {
	t.Helper()
	for i := range m.Tenants {
		for j := range m.Tenants {
			a, b := m.Values[i][j], m.Values[j][i]
			if math.IsNaN(a) {
				assert.True(t, math.IsNaN(b))
				continue
			}
			assert.Equal(t, a, b, "%s/%s", m.Tenants[i], m.Tenants[j])
		}
	}
}

func TestPearson(t *testing.T) {
	var records []sensor.Record
	for d := 2; d <= 6; d++ {
		v := float64(d)
		records = append(records,
			reading(day(d, 8), "a", v),
			reading(day(d, 9), "a", v+2), // daily mean v+1
			reading(day(d, 8), "b", 2*v),
			reading(day(d, 8), "c", -v),
		)
	}
	// d only shares one day with the rest
	records = append(records, reading(day(2, 8), "d", 7))

	m := Pearson(build(t, records), sensor.FieldTemperature)

	require.Equal(t, []string{"a", "b", "c", "d"}, m.Tenants)
	assertSymmetric(t, m)

	ab, _ := m.At("a", "b")
	assert.InDelta(t, 1.0, ab, 1e-12)
	ac, _ := m.At("a", "c")
	assert.InDelta(t, -1.0, ac, 1e-12)

	for _, tenant := range []string{"a", "b", "c"} {
		self, ok := m.At(tenant, tenant)
		require.True(t, ok)
		assert.Equal(t, 1.0, self, "unit diagonal")
	}

	ad, _ := m.At("a", "d")
	assert.True(t, math.IsNaN(ad), "fewer than two shared days")
	dd, _ := m.At("d", "d")
	assert.True(t, math.IsNaN(dd), "single observation has no variance")

	_, ok := m.At("a", "zzz")
	assert.False(t, ok)
}

func TestPearson_IgnoresNonVarious(t *testing.T) {
	records := []sensor.Record{
		reading(day(2, 8), "a", 1),
		reading(day(3, 8), "a", 2),
		{Timestamp: day(2, 8), Tenant: "meteo", Temperature: null.FloatFrom(5), Description: null.StringFrom("rain"), Raw: "m1"},
		{Timestamp: day(3, 8), Tenant: "meteo", Temperature: null.FloatFrom(6), Description: null.StringFrom("rain"), Raw: "m2"},
	}

	m := Pearson(build(t, records), sensor.FieldTemperature)
	assert.Equal(t, []string{"a"}, m.Tenants)

	humidity := Pearson(build(t, records), sensor.FieldHumidity)
	assert.Empty(t, humidity.Tenants)
}

func TestCompute_TenantSetDependsOnMetric(t *testing.T) {
	withHumidity := func(r sensor.Record, h float64) sensor.Record {
		r.Humidity = null.FloatFrom(h)
		r.Raw += fmt.Sprintf("h%v", h)
		return r
	}
	records := []sensor.Record{
		withHumidity(reading(day(2, 8), "a", 1), 40),
		withHumidity(reading(day(3, 8), "a", 2), 45),
		reading(day(2, 8), "b", 3),
		reading(day(3, 8), "b", 4),
	}
	ds := build(t, records)

	temperature, err := Compute(ds, MetricTemperature)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, temperature.Tenants)

	humidity, err := Compute(ds, MetricHumidity)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, humidity.Tenants)
	_, ok := humidity.At("b", "b")
	assert.False(t, ok)
}

func TestPearson_ConstantSeriesIsNaN(t *testing.T) {
	records := []sensor.Record{
		reading(day(2, 8), "a", 1),
		reading(day(3, 8), "a", 2),
		reading(day(2, 8), "b", 5),
		{Timestamp: day(3, 8), Tenant: "b", Temperature: null.FloatFrom(5), Raw: "b2"},
	}

	m := Pearson(build(t, records), sensor.FieldTemperature)
	ab, _ := m.At("a", "b")
	assert.True(t, math.IsNaN(ab))
}

func TestOccupancy(t *testing.T) {
	records := []sensor.Record{
		// a and b: same hourly fingerprint, different volume
		presence(day(2, 8), "a", true),
		presence(day(3, 8), "a", true),
		presence(day(2, 20), "a", true),
		{Timestamp: day(3, 20), Tenant: "a", Illuminance: null.FloatFrom(1), Occupancy: null.BoolFrom(true), Raw: "a-extra"},
		presence(day(4, 8), "b", true),
		presence(day(4, 20), "b", true),
		// c: only mornings
		presence(day(5, 6), "c", true),
		// z: never occupied, excluded
		presence(day(5, 6), "z", false),
	}

	m := Occupancy(build(t, records))
	require.Equal(t, []string{"a", "b", "c"}, m.Tenants)
	assertSymmetric(t, m)

	for _, tenant := range m.Tenants {
		self, _ := m.At(tenant, tenant)
		assert.Equal(t, 0.0, self, "zero diagonal")
	}

	ab, _ := m.At("a", "b")
	assert.InDelta(t, 0.0, ab, 1e-12, "identical normalised profiles")

	// a = {8: .5, 20: .5}, c = {6: 1}: -(.5 + .5 + 1) = -2
	ac, _ := m.At("a", "c")
	assert.InDelta(t, -2.0, ac, 1e-12)
}

func TestProfile_CountsDistinctHours(t *testing.T) {
	records := []sensor.Record{
		presence(day(2, 8), "a", true),
		{Timestamp: day(2, 8).Add(10 * time.Minute), Tenant: "a", Illuminance: null.FloatFrom(1), Occupancy: null.BoolFrom(true), Raw: "again"},
		presence(day(3, 8), "a", true),
	}

	profiles, tenants := Profile(build(t, records))
	require.Equal(t, []string{"a"}, tenants)
	assert.Equal(t, 2.0, profiles["a"][8], "two days, not three rows")
}

func TestCompute_UnknownMetric(t *testing.T) {
	_, err := Compute(build(t, nil), "pressure")
	assert.ErrorIs(t, err, ErrUnknownMetric)

	for _, metric := range Metrics {
		m, err := Compute(build(t, nil), metric)
		require.NoError(t, err)
		assert.Equal(t, metric, m.Metric)
		assert.NotEmpty(t, m.Title)
	}
}
