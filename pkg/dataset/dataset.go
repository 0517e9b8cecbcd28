// Package dataset merges per-tenant record sets into one immutable,
// chronologically ordered and classified Dataset.
package dataset

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

// Dataset is the merged, filtered and classified record table of one
// build. It is never mutated after construction; every accessor hands
// out copies, so concurrent readers need no locking.
type Dataset struct {
	records []sensor.Record
	index   map[sensor.Category][]int
	tenants []string
	cutoff  time.Time
	buildID string
	builtAt time.Time
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Records returns every record in time order.
func (d *Dataset) Records() []sensor.Record {
	return slices.Clone(d.records)
}

// Select returns the records matching pred, in time order.
func (d *Dataset) Select(pred func(*sensor.Record) bool) []sensor.Record {
	var out []sensor.Record
	for i := range d.records {
		if pred(&d.records[i]) {
			out = append(out, d.records[i])
		}
	}
	return out
}

// ByCategory returns the records of one category, in time order.
func (d *Dataset) ByCategory(c sensor.Category) []sensor.Record {
	idx := d.index[c]
	out := make([]sensor.Record, len(idx))
	for i, j := range idx {
		out[i] = d.records[j]
	}
	return out
}

// Tenants returns the tenant ids present, sorted.
func (d *Dataset) Tenants() []string {
	return slices.Clone(d.tenants)
}

// CategoryCounts returns the number of records per category. Every
// category is present, possibly with a zero count.
func (d *Dataset) CategoryCounts() map[sensor.Category]int {
	counts := make(map[sensor.Category]int, len(sensor.Categories))
	for _, c := range sensor.Categories {
		counts[c] = len(d.index[c])
	}
	return counts
}

// Span returns the first and last timestamp. Both are zero for an empty
// dataset.
func (d *Dataset) Span() (time.Time, time.Time) {
	if len(d.records) == 0 {
		return time.Time{}, time.Time{}
	}
	return d.records[0].Timestamp, d.records[len(d.records)-1].Timestamp
}

// Cutoff returns the acceptance cutoff. Every record is strictly after it.
func (d *Dataset) Cutoff() time.Time {
	return d.cutoff
}

// BuildID identifies this build in logs, health output and exports.
func (d *Dataset) BuildID() string {
	return d.buildID
}

// BuiltAt returns when the dataset was assembled.
func (d *Dataset) BuiltAt() time.Time {
	return d.builtAt
}

func newDataset(records []sensor.Record, cutoff time.Time, buildID string) *Dataset {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	index := make(map[sensor.Category][]int, len(sensor.Categories))
	tenants := make(map[string]struct{})
	for i := range records {
		c := records[i].Category
		index[c] = append(index[c], i)
		tenants[records[i].Tenant] = struct{}{}
	}

	return &Dataset{
		records: records,
		index:   index,
		tenants: slices.Sorted(maps.Keys(tenants)),
		cutoff:  cutoff,
		buildID: buildID,
		builtAt: time.Now().UTC(),
	}
}
