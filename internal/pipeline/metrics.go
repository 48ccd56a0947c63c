package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seisan_documents_total",
			Help: "Total number of processed documents by final route",
		},
		[]string{"route"}, // route: accept, queue, input_error
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seisan_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ocrEngineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seisan_ocr_engine_runs_total",
			Help: "Total number of OCR engine runs",
		},
		[]string{"engine", "status"}, // status: ok, empty, error, timeout, init_error
	)

	confidenceHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seisan_confidence",
			Help:    "Final extraction confidence",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .75, .8, .9, 1},
		},
	)

	queueEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seisan_queue_entries",
			Help: "Number of documents waiting in the manual review queue",
		},
	)
)

// ObserveQueueSize sets the queue gauge, for callers that list or prune the queue.
func ObserveQueueSize(n int) {
	queueEntries.Set(float64(n))
}

func observeStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func observeEngineRun(engine, status string, _ time.Duration) {
	ocrEngineRuns.WithLabelValues(engine, status).Inc()
}
