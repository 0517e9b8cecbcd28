// Package telemetry holds the Prometheus metrics of the pipeline and the
// read API. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenantobs"

// Metrics groups every collector tenantobs exports.
type Metrics struct {
	RecordsLoaded       *prometheus.CounterVec
	RecordsDropped      prometheus.Counter
	RecordsClassified   *prometheus.CounterVec
	DuplicatesRejected  prometheus.Counter
	BuildDuration       prometheus.Histogram
	BuildFailures       prometheus.Counter
	DatasetRecords      prometheus.Gauge
	AggregateDuration   *prometheus.HistogramVec
	AggregateDegenerate *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Rows read from tenant sources",
		}, []string{"tenant"}),
		RecordsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_before_cutoff_total",
			Help:      "Rows discarded because they are not after the cutoff",
		}),
		RecordsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_classified_total",
			Help:      "Records per assigned sensor category",
		}, []string{"category"}),
		DuplicatesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_records_total",
			Help:      "Builds aborted by a duplicate record",
		}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_build_duration_seconds",
			Help:      "Duration of dataset builds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		BuildFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_build_failures_total",
			Help:      "Dataset builds that ended in an ingestion error",
		}),
		DatasetRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_records",
			Help:      "Records in the current dataset",
		}),
		AggregateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of aggregate computations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		AggregateDegenerate: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_degenerate_total",
			Help:      "Aggregates whose normalisation had a zero or undefined denominator",
		}, []string{"view"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Read API requests",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveLoaded(tenant string, n int) {
	if m == nil {
		return
	}
	m.RecordsLoaded.WithLabelValues(tenant).Add(float64(n))
}

func (m *Metrics) ObserveDropped(n int) {
	if m == nil {
		return
	}
	m.RecordsDropped.Add(float64(n))
}

func (m *Metrics) ObserveClassified(counts map[string]int) {
	if m == nil {
		return
	}
	for category, n := range counts {
		m.RecordsClassified.WithLabelValues(category).Add(float64(n))
	}
}

func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesRejected.Inc()
}

// ObserveBuild records a finished build; records is ignored on failure.
func (m *Metrics) ObserveBuild(d time.Duration, records int, err error) {
	if m == nil {
		return
	}
	m.BuildDuration.Observe(d.Seconds())
	if err != nil {
		m.BuildFailures.Inc()
		return
	}
	m.DatasetRecords.Set(float64(records))
}

func (m *Metrics) ObserveAggregate(view string, d time.Duration, degenerate bool) {
	if m == nil {
		return
	}
	m.AggregateDuration.WithLabelValues(view).Observe(d.Seconds())
	if degenerate {
		m.AggregateDegenerate.WithLabelValues(view).Inc()
	}
}

func (m *Metrics) ObserveRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}
