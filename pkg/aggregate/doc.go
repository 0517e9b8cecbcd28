/*
Package aggregate implements the resample → regroup reducer behind every
temporal view of a tenant dataset.

# Two Stages

Every view is the same pipeline with different parameters:

	records ─filter→ resample(granularity, statistic) ─→ regroup(cycle, reduction) ─→ normalize

Resample cuts the time-ordered records into fixed buckets (hour, day,
ISO week, month) and reduces each bucket to one number:

  - Count: rows in the bucket
  - Mean(field): mean of the field over rows that carry it
  - DistinctTenants: distinct tenants among the rows

Regroup then collects the buckets sharing a cyclical key (calendar month,
month of year, ISO week, hour of day, weekday × hour) and reduces them
with Mean, MeanStd (population standard deviation) or Sum.

# Why Two Passes?

Averaging hourly means instead of raw rows weights every hour equally,
however many readings it holds. Example, hour 13:00 over two days:

	2019-03-04 13:00  readings 10, 10, 10, 10  → bucket mean 10
	2019-03-05 13:00  reading  20              → bucket mean 20

	regroup(13:00) = mean(10, 20) = 15         (single pass would give 12)

# Empty Buckets

Count statistics fill every bucket between the first and last observed
one with 0: no rows on a day is a real zero. Mean statistics leave empty
buckets out: there is nothing to average. Missing values are never
coerced to zero.

# Normalisation

RatioToMax divides by the largest value; MissingRatio reports
1 - v/max. When the maximum is 0 (or there are no values at all) every
value becomes NaN and Table.Degenerate is set. Callers that care check
Table.Err:

	t, err := engine.Compute(ctx, aggregate.ViewRelativeOccupancyByHour, aggregate.Options{})
	if err != nil {
	    return err // unknown view or cancelled context
	}
	if t.Degenerate {
	    logger.Warn("no occupancy observed", zap.Error(t.Err()))
	}

# Views

The eleven registered views (see Names) cover coverage by month,
temperature and humidity by month and week, occupancy ratio by hour and
weekday × hour, and temperature by hour and weekday × hour with optional
standard deviation band and occupancy overlay.

ComputeAll runs every view in parallel over the same read-only dataset.
A view that fails is reported on its own and never blocks the others.
*/
package aggregate
