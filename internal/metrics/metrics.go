// Package metrics holds the Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelineRuns counts finished pipeline runs by outcome (done, empty, error).
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_pipeline_runs_total",
			Help: "Finished pipeline runs by outcome",
		},
		[]string{"outcome", "kind"},
	)

	// StageDuration observes each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transit_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	Transforms = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_transforms_total",
			Help: "Transforms applied by method and result",
		},
		[]string{"method", "result"},
	)

	Transports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_transports_total",
			Help: "Transport dispatches by class and result",
		},
		[]string{"class", "result"},
	)

	TransportedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_transported_bytes_total",
			Help: "Bytes pushed to remote stores",
		},
		[]string{"class"},
	)

	// RollbackFailures counts undo actions that could not be completed.
	RollbackFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_rollback_failures_total",
			Help: "Rollback deletions that failed",
		},
	)

	CleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transit_cleanup_failures_total",
			Help: "Old-file deletions after a replace that failed",
		},
	)
)

// ObserveStage records the time since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Result maps an error to a "ok"/"error" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
