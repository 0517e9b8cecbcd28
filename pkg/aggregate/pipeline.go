package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

// Pipeline is the two-stage reducer behind every view:
//
//	filter -> resample(Granularity, Statistic) -> regroup(Cycle, Reduction) -> normalize
type Pipeline struct {
	Filter      func(*sensor.Record) bool // nil keeps every record
	Granularity Granularity
	Label       Label
	Statistic   Statistic
	Cycle       Cycle
	Reduction   Reduction
	Normalize   Normalize
}

// Run executes both stages. records must be in time order.
func (p Pipeline) Run(records []sensor.Record) *Table {
	return p.Regroup(p.Resample(records))
}

// bucketAcc accumulates one time bucket.
type bucketAcc struct {
	start   time.Time
	sum     float64
	count   int
	tenants map[string]struct{}
}

// Resample partitions records into buckets and reduces each to one value.
// Count statistics fill the gaps between the first and last bucket with
// zero; mean buckets without a value for the field are left out.
func (p Pipeline) Resample(records []sensor.Record) []Bucket {
	buckets := make(map[time.Time]*bucketAcc)

	for i := range records {
		r := &records[i]
		if p.Filter != nil && !p.Filter(r) {
			continue
		}

		start := p.Granularity.Truncate(r.Timestamp)
		acc, exists := buckets[start]
		if !exists {
			acc = &bucketAcc{start: start}
			buckets[start] = acc
		}

		switch p.Statistic.Kind {
		case StatCount:
			acc.count++
		case StatMean:
			v, ok := r.Float(p.Statistic.Field)
			if !ok || math.IsNaN(v) {
				continue
			}
			acc.sum += v
			acc.count++
		case StatDistinctTenants:
			if acc.tenants == nil {
				acc.tenants = make(map[string]struct{})
			}
			acc.tenants[r.Tenant] = struct{}{}
			acc.count++
		}
	}

	if len(buckets) == 0 {
		return nil
	}

	starts := make([]time.Time, 0, len(buckets))
	for s := range buckets {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	if p.Statistic.fills() {
		first, last := starts[0], starts[len(starts)-1]
		starts = starts[:0]
		for s := first; !s.After(last); s = p.Granularity.Next(s) {
			starts = append(starts, s)
		}
	}

	out := make([]Bucket, 0, len(starts))
	for _, s := range starts {
		acc := buckets[s]
		b := Bucket{Start: s, Label: p.label(s)}

		switch {
		case acc == nil:
			// filled gap
		case p.Statistic.Kind == StatCount:
			b.Value = float64(acc.count)
			b.N = acc.count
		case p.Statistic.Kind == StatMean:
			if acc.count == 0 {
				continue
			}
			b.Value = acc.sum / float64(acc.count)
			b.N = acc.count
		case p.Statistic.Kind == StatDistinctTenants:
			b.Value = float64(len(acc.tenants))
			b.N = acc.count
		}
		out = append(out, b)
	}
	return out
}

func (p Pipeline) label(start time.Time) time.Time {
	edge := start
	if p.Label == LabelRight {
		edge = p.Granularity.Next(start)
	}
	if p.Granularity.endAnchored() {
		edge = edge.AddDate(0, 0, -1)
	}
	return edge
}

// Regroup reduces buckets sharing a cyclical key, then normalises. The
// key is taken from each bucket's label.
func (p Pipeline) Regroup(buckets []Bucket) *Table {
	groups := make(map[Key][]float64)
	for _, b := range buckets {
		k := p.Cycle.KeyOf(b.Label)
		groups[k] = append(groups[k], b.Value)
	}

	keys := make([]Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	t := &Table{
		Cycle:  p.Cycle,
		Rows:   make([]Row, 0, len(keys)),
		HasStd: p.Reduction == ReduceMeanStd,
	}
	for _, k := range keys {
		values := groups[k]
		row := Row{
			Key:       k,
			Label:     p.Cycle.Label(k),
			Std:       math.NaN(),
			Samples:   len(values),
			Occupancy: math.NaN(),
		}
		switch p.Reduction {
		case ReduceSum:
			row.Value = sum(values)
		case ReduceMean:
			row.Value = mean(values)
		case ReduceMeanStd:
			row.Value, row.Std = meanStd(values)
		}
		t.Rows = append(t.Rows, row)
	}

	normalize(t, p.Normalize)
	return t
}

// normalize divides by the largest finite value. A zero or undefined
// maximum turns every value into NaN and flags the table.
func normalize(t *Table, n Normalize) {
	if n == NormalizeNone {
		return
	}

	m := maxFinite(t.Rows)
	if math.IsNaN(m) || m == 0 {
		for i := range t.Rows {
			t.Rows[i].Value = math.NaN()
		}
		t.Degenerate = true
		return
	}

	for i := range t.Rows {
		ratio := t.Rows[i].Value / m
		if n == MissingRatio {
			ratio = 1 - ratio
		}
		t.Rows[i].Value = ratio
	}
}

// OverlayOccupancy copies the occupancy ratio of each matching key onto
// t. Keys with no occupancy row get 0; a degenerate occupancy table
// leaves NaN everywhere.
func (t *Table) OverlayOccupancy(occ *Table) {
	t.HasOverlay = true
	for i := range t.Rows {
		if occ.Degenerate {
			t.Rows[i].Occupancy = math.NaN()
			continue
		}
		if r, ok := occ.Lookup(t.Rows[i].Key); ok {
			t.Rows[i].Occupancy = r.Value
		} else {
			t.Rows[i].Occupancy = 0
		}
	}
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return sum(values) / float64(len(values))
}

// meanStd returns the mean and the population standard deviation.
func meanStd(values []float64) (float64, float64) {
	m := mean(values)
	if math.IsNaN(m) {
		return m, math.NaN()
	}
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(len(values)))
}
