// Package correlation builds tenant × tenant similarity matrices: Pearson
// correlation of daily means, and an additive chi-squared kernel over
// hourly occupancy profiles.
package correlation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/sensor"
)

// ErrUnknownMetric is returned for a metric name that is not supported.
var ErrUnknownMetric = errors.New("unknown correlation metric")

// Metric names.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricOccupancy   = "occupancy"
)

// Metrics lists every supported metric.
var Metrics = []string{MetricTemperature, MetricHumidity, MetricOccupancy}

var titles = map[string]string{
	MetricTemperature: "Correlation Between the Temperature Values of Different Tenants",
	MetricHumidity:    "Correlation Between the Humidity Values of Different Tenants",
	MetricOccupancy:   "Correlation Between the Occupancy Values of Different Tenants",
}

// Matrix is a square tenant-indexed table. Rows and columns share the
// order of Tenants.
type Matrix struct {
	Metric string
	Title  string

	// Tenants holds only tenants with at least one value for the metric,
	// sorted. The set can differ between metrics of the same dataset.
	Tenants []string
	Values  [][]float64 // NaN where undefined
}

// At returns the value for a tenant pair.
func (m *Matrix) At(a, b string) (float64, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return math.NaN(), false
	}
	return m.Values[i][j], true
}

func (m *Matrix) index(tenant string) int {
	i := sort.SearchStrings(m.Tenants, tenant)
	if i < len(m.Tenants) && m.Tenants[i] == tenant {
		return i
	}
	return -1
}

func newMatrix(metric string, tenants []string) *Matrix {
	values := make([][]float64, len(tenants))
	for i := range values {
		values[i] = make([]float64, len(tenants))
	}
	return &Matrix{Metric: metric, Title: titles[metric], Tenants: tenants, Values: values}
}

// Compute builds the matrix for a metric name.
func Compute(ds *dataset.Dataset, metric string) (*Matrix, error) {
	switch metric {
	case MetricTemperature:
		return Pearson(ds, sensor.FieldTemperature), nil
	case MetricHumidity:
		return Pearson(ds, sensor.FieldHumidity), nil
	case MetricOccupancy:
		return Occupancy(ds), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}

// byTenant splits the selected records per tenant, keeping time order.
func byTenant(records []sensor.Record) (map[string][]sensor.Record, []string) {
	groups := make(map[string][]sensor.Record)
	for _, r := range records {
		groups[r.Tenant] = append(groups[r.Tenant], r)
	}
	tenants := make([]string, 0, len(groups))
	for t := range groups {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return groups, tenants
}

// Pearson correlates per-tenant daily means of field over category
// various. Pairs are compared on the days both tenants have a value;
// fewer than two shared days or zero variance gives NaN.
func Pearson(ds *dataset.Dataset, field sensor.Field) *Matrix {
	groups, tenants := byTenant(ds.ByCategory(sensor.CategoryVarious))

	daily := aggregate.Pipeline{Granularity: aggregate.Day, Statistic: aggregate.Mean(field)}
	series := make([]map[time.Time]float64, len(tenants))
	for i, t := range tenants {
		series[i] = make(map[time.Time]float64)
		for _, b := range daily.Resample(groups[t]) {
			series[i][b.Start] = b.Value
		}
	}

	// tenants without a single value for this field have no column
	kept := tenants[:0:0]
	var cols []map[time.Time]float64
	for i, t := range tenants {
		if len(series[i]) > 0 {
			kept = append(kept, t)
			cols = append(cols, series[i])
		}
	}

	m := newMatrix(string(field), kept)
	for i := range kept {
		for j := i; j < len(kept); j++ {
			v := pairwise(cols[i], cols[j])
			if i == j && !math.IsNaN(v) {
				v = 1
			}
			m.Values[i][j] = v
			m.Values[j][i] = v
		}
	}
	return m
}

// pairwise computes Pearson's r over the days present in both series.
func pairwise(x, y map[time.Time]float64) float64 {
	var xs, ys []float64
	for day, xv := range x {
		if yv, ok := y[day]; ok {
			xs = append(xs, xv)
			ys = append(ys, yv)
		}
	}
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}

	var mx, my float64
	for i := 0; i < n; i++ {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}

	r := sxy / math.Sqrt(sxx*syy)
	// rounding can push |r| just past 1
	return math.Max(-1, math.Min(1, r))
}

// Profile returns, per tenant, the number of distinct occupied hours
// observed at each hour of day.
func Profile(ds *dataset.Dataset) (map[string][24]float64, []string) {
	groups, tenants := byTenant(ds.Select(func(r *sensor.Record) bool { return r.Occupied() }))

	hourly := aggregate.Pipeline{Granularity: aggregate.Hour, Statistic: aggregate.Count()}
	profiles := make(map[string][24]float64, len(tenants))
	for _, t := range tenants {
		var p [24]float64
		for _, b := range hourly.Resample(groups[t]) {
			if b.Value > 0 {
				p[b.Start.Hour()]++
			}
		}
		profiles[t] = p
	}
	return profiles, tenants
}

// Occupancy compares the normalised hourly presence profiles of every
// tenant with any occupancy. The value is -Σ (x-y)²/(x+y), skipping
// hours where both are zero: 0 for identical profiles, negative
// otherwise.
func Occupancy(ds *dataset.Dataset) *Matrix {
	profiles, tenants := Profile(ds)

	normalized := make([][24]float64, len(tenants))
	for i, t := range tenants {
		normalized[i] = normalize(profiles[t])
	}

	m := newMatrix(MetricOccupancy, tenants)
	for i := range tenants {
		for j := i; j < len(tenants); j++ {
			v := additiveChi2(normalized[i], normalized[j])
			m.Values[i][j] = v
			m.Values[j][i] = v
		}
	}
	return m
}

// normalize scales a profile to sum to 1. An all-zero profile is NaN.
func normalize(p [24]float64) [24]float64 {
	var total float64
	for _, v := range p {
		total += v
	}
	var out [24]float64
	for h, v := range p {
		if total == 0 {
			out[h] = math.NaN()
			continue
		}
		out[h] = v / total
	}
	return out
}

func additiveChi2(x, y [24]float64) float64 {
	var s float64
	for h := 0; h < 24; h++ {
		if math.IsNaN(x[h]) || math.IsNaN(y[h]) {
			return math.NaN()
		}
		den := x[h] + y[h]
		if den == 0 {
			continue
		}
		d := x[h] - y[h]
		s -= d * d / den
	}
	return s
}
