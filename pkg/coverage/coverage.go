// Package coverage summarises how densely each tenant logged over its
// observed span.
package coverage

import (
	"math"
	"sort"
	"time"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/dataset"
	"github.com/nicktill/tenantobs/pkg/sensor"
)

// Tenant is the coverage record of one tenant.
type Tenant struct {
	Tenant        string    `json:"tenant"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Records       int       `json:"records"`
	HoursWithData int       `json:"hours_with_data"`
	ElapsedHours  int       `json:"elapsed_hours"`

	// Percentage is HoursWithData / ElapsedHours × 100 capped at 100, NaN
	// when the span is shorter than a second. Clock hours and elapsed
	// hours differ: 10:50 and 11:10 touch two clock hours over a one hour
	// span.
	Percentage float64 `json:"-"`
}

// ElapsedHours rounds a span up to whole hours.
func ElapsedHours(d time.Duration) int {
	return int(math.Ceil(d.Hours()))
}

// Summarize returns one record per tenant, ordered by tenant id.
func Summarize(ds *dataset.Dataset) []Tenant {
	groups := make(map[string][]sensor.Record)
	for _, r := range ds.Records() {
		groups[r.Tenant] = append(groups[r.Tenant], r)
	}

	tenants := make([]string, 0, len(groups))
	for t := range groups {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	hourly := aggregate.Pipeline{Granularity: aggregate.Hour, Statistic: aggregate.Count()}

	out := make([]Tenant, 0, len(tenants))
	for _, t := range tenants {
		records := groups[t]
		c := Tenant{
			Tenant:  t,
			Start:   records[0].Timestamp,
			End:     records[len(records)-1].Timestamp,
			Records: len(records),
		}

		for _, b := range hourly.Resample(records) {
			if b.Value > 0 {
				c.HoursWithData++
			}
		}

		c.ElapsedHours = ElapsedHours(c.End.Sub(c.Start))
		if c.ElapsedHours == 0 {
			c.Percentage = math.NaN()
		} else {
			c.Percentage = math.Min(100, float64(c.HoursWithData)/float64(c.ElapsedHours)*100)
		}
		out = append(out, c)
	}
	return out
}
