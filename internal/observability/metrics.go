package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// backfill and enrichment pipelines.
type Metrics struct {
	UnitsAttempted  prometheus.Counter
	UnitsFailed     prometheus.Counter
	UnitsSkipped    prometheus.Counter
	BackfillRunning prometheus.Gauge

	RecordsProcessed prometheus.Counter
	RecordsInserted  prometheus.Counter
	RecordsUpdated   prometheus.Counter
	RecordsSkipped   prometheus.Counter

	FetchAttempts  *prometheus.CounterVec // labels: outcome={success,error}
	ArchiveBytes   prometheus.Histogram
	UnitDuration   prometheus.Histogram
	PlaceLookups   *prometheus.CounterVec // labels: tier={event,city,nearby}, outcome={hit,miss,error}
	EnrichDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UnitsAttempted,
		m.UnitsFailed,
		m.UnitsSkipped,
		m.BackfillRunning,
		m.RecordsProcessed,
		m.RecordsInserted,
		m.RecordsUpdated,
		m.RecordsSkipped,
		m.FetchAttempts,
		m.ArchiveBytes,
		m.UnitDuration,
		m.PlaceLookups,
		m.EnrichDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UnitsAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "units_attempted_total",
			Help:      "Total (region, month) units the orchestrator attempted.",
		}),
		UnitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "units_failed_total",
			Help:      "Total units that ended with a failed progress row.",
		}),
		UnitsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "units_skipped_total",
			Help:      "Total units skipped because they were already completed.",
		}),
		BackfillRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_backfill",
			Name:      "running",
			Help:      "1 while a backfill batch is in progress.",
		}),
		RecordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "records_processed_total",
			Help:      "Total warning records parsed from archives.",
		}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "records_inserted_total",
			Help:      "Total new alert rows inserted.",
		}),
		RecordsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "records_updated_total",
			Help:      "Total existing alert rows updated in place.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "records_skipped_total",
			Help:      "Total records skipped for bad geometry or missing key components.",
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "fetch_attempts_total",
			Help:      "Archive fetch attempts by outcome.",
		}, []string{"outcome"}),
		ArchiveBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_backfill",
			Name:      "archive_bytes",
			Help:      "Size of downloaded archives in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_backfill",
			Name:      "unit_duration_seconds",
			Help:      "Duration of one complete (region, month) unit.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PlaceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "place_lookups_total",
			Help:      "Place resolution attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		EnrichDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_backfill",
			Name:      "enrich_duration_seconds",
			Help:      "Duration of one report's full enrichment.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
