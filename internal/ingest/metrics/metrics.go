package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal counts raw records consumed from the source.
	RecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_records_total",
			Help: "Total number of records consumed from the source",
		},
	)

	// RecordsValidated counts records that passed validation.
	RecordsValidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_records_validated_total",
			Help: "Total number of records that passed validation",
		},
	)

	// RecordsSkipped counts policy skips by reason.
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_skipped_total",
			Help: "Total number of records skipped by policy",
		},
		[]string{"reason"},
	)

	// RecordsPersisted counts entities written to the store.
	RecordsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_records_persisted_total",
			Help: "Total number of entities persisted",
		},
	)

	// RecordsFailed counts validation and persistence failures.
	RecordsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_failed_total",
			Help: "Total number of records that failed",
		},
		[]string{"stage"},
	)

	// RunDuration tracks end-to-end pipeline run time.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
