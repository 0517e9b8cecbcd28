package aggregate

import (
	"sort"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

// View names.
const (
	ViewRelativeAmountDataByMonth                 = "relative-amount-data-by-month"
	ViewAverageTemperatureByMonth                 = "average-temperature-by-month"
	ViewAverageHumidityByMonth                    = "average-humidity-by-month"
	ViewAverageTemperatureByWeek                  = "average-temperature-by-week"
	ViewAverageHumidityByWeek                     = "average-humidity-by-week"
	ViewRelativeOccupancyByHour                   = "relative-occupancy-by-hour"
	ViewRelativeOccupancyByHourWeek               = "relative-occupancy-by-hour-week"
	ViewAverageTemperatureByHour                  = "average-temperature-by-hour"
	ViewAverageTemperatureByHourWithOccupancy     = "average-temperature-by-hour-with-occupancy"
	ViewAverageTemperatureByHourWeek              = "average-temperature-by-hour-week"
	ViewAverageTemperatureByHourWeekWithOccupancy = "average-temperature-by-hour-week-with-occupancy"
)

// View is a named pipeline, optionally overlaid with occupancy.
type View struct {
	Name     string
	Title    string
	StdTitle string // title when the dispersion band is requested

	Pipeline Pipeline
	Overlay  *Pipeline

	// SupportsStd views switch to ReduceMeanStd when Options.WithStd is set.
	SupportsStd bool
}

// Options tune a single computation.
type Options struct {
	WithStd bool
}

// TitleFor returns the title matching the options.
func (v View) TitleFor(opts Options) string {
	if opts.WithStd && v.SupportsStd && v.StdTitle != "" {
		return v.StdTitle
	}
	return v.Title
}

func isVarious(r *sensor.Record) bool {
	return r.Category == sensor.CategoryVarious
}

// occupied keeps only explicit occupancy=true; false and absent are
// both excluded.
func occupied(r *sensor.Record) bool {
	return r.Occupied()
}

// fieldMean resamples category various by g and averages by c. Buckets
// are left-labelled, so week and month values regroup under the key of
// the preceding period.
func fieldMean(f sensor.Field, g Granularity, c Cycle) Pipeline {
	return Pipeline{
		Filter:      isVarious,
		Granularity: g,
		Label:       LabelLeft,
		Statistic:   Mean(f),
		Cycle:       c,
		Reduction:   ReduceMean,
	}
}

func occupancyRatio(c Cycle) Pipeline {
	return Pipeline{
		Filter:      occupied,
		Granularity: Hour,
		Statistic:   DistinctTenants(),
		Cycle:       c,
		Reduction:   ReduceSum,
		Normalize:   RatioToMax,
	}
}

func hourlyTemperature(c Cycle) Pipeline {
	return fieldMean(sensor.FieldTemperature, Hour, c)
}

func overlay(c Cycle) *Pipeline {
	p := occupancyRatio(c)
	return &p
}

var views = map[string]View{
	ViewRelativeAmountDataByMonth: {
		Name:  ViewRelativeAmountDataByMonth,
		Title: "Relative Data Missing by Month",
		Pipeline: Pipeline{
			Granularity: Day,
			Statistic:   Count(),
			Cycle:       CalendarMonth,
			Reduction:   ReduceMean,
			Normalize:   MissingRatio,
		},
	},
	ViewAverageTemperatureByMonth: {
		Name:     ViewAverageTemperatureByMonth,
		Title:    "Average Temperature by Month",
		Pipeline: fieldMean(sensor.FieldTemperature, Month, MonthOfYear),
	},
	ViewAverageHumidityByMonth: {
		Name:     ViewAverageHumidityByMonth,
		Title:    "Average Humidity by Month",
		Pipeline: fieldMean(sensor.FieldHumidity, Month, MonthOfYear),
	},
	ViewAverageTemperatureByWeek: {
		Name:     ViewAverageTemperatureByWeek,
		Title:    "Average Temperature by Week",
		Pipeline: fieldMean(sensor.FieldTemperature, Week, ISOWeek),
	},
	ViewAverageHumidityByWeek: {
		Name:     ViewAverageHumidityByWeek,
		Title:    "Average Humidity by Week",
		Pipeline: fieldMean(sensor.FieldHumidity, Week, ISOWeek),
	},
	ViewRelativeOccupancyByHour: {
		Name:     ViewRelativeOccupancyByHour,
		Title:    "Relative Occupancy by Hour",
		Pipeline: occupancyRatio(HourOfDay),
	},
	ViewRelativeOccupancyByHourWeek: {
		Name:     ViewRelativeOccupancyByHourWeek,
		Title:    "Average Occupancy by Hours in a Week",
		Pipeline: occupancyRatio(WeekdayHour),
	},
	ViewAverageTemperatureByHour: {
		Name:        ViewAverageTemperatureByHour,
		Title:       "Average Temperature by Hour",
		StdTitle:    "Average Temperature by Hour with Standard Deviation Range",
		Pipeline:    hourlyTemperature(HourOfDay),
		SupportsStd: true,
	},
	ViewAverageTemperatureByHourWithOccupancy: {
		Name:        ViewAverageTemperatureByHourWithOccupancy,
		Title:       "Average Temperature by Hour with Occupancy Information",
		StdTitle:    "Average Temperature by Hour with Occupancy Information and Standard Deviation Range",
		Pipeline:    hourlyTemperature(HourOfDay),
		Overlay:     overlay(HourOfDay),
		SupportsStd: true,
	},
	ViewAverageTemperatureByHourWeek: {
		Name:        ViewAverageTemperatureByHourWeek,
		Title:       "Average Temperature by Hours in a Week",
		StdTitle:    "Average Temperature by Hours in a Week with Standard Deviation Range",
		Pipeline:    hourlyTemperature(WeekdayHour),
		SupportsStd: true,
	},
	ViewAverageTemperatureByHourWeekWithOccupancy: {
		Name:        ViewAverageTemperatureByHourWeekWithOccupancy,
		Title:       "Average Temperature by Hours in a Week with Occupancy Information",
		StdTitle:    "Average Temperature by Hours in a Week with Occupancy Information and Standard Deviation Range",
		Pipeline:    hourlyTemperature(WeekdayHour),
		Overlay:     overlay(WeekdayHour),
		SupportsStd: true,
	},
}

// Names returns every view name, sorted.
func Names() []string {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a registered view.
func Lookup(name string) (View, bool) {
	v, ok := views[name]
	return v, ok
}
