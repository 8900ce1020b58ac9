package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_ingest_files_processed_total",
		Help: "Detection files parsed across all ingestion cycles",
	})

	detectionsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_ingest_detections_saved_total",
		Help: "Detections persisted across all ingestion cycles",
	})

	linesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_ingest_lines_rejected_total",
		Help: "Feed lines skipped during parsing",
	}, []string{"kind"}) // silent, warned

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_ingest_cycle_duration_seconds",
		Help:    "Wall time of one full ingestion cycle",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	cycleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_ingest_cycle_failures_total",
		Help: "Ingestion cycles aborted by a transport or persistence error",
	})
)
