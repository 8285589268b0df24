// Package metrics holds the prometheus collectors for the vnote service.
// Collectors register on the default registry at init; the server mounts
// promhttp at /metrics. Callers record through the helper functions so the
// label vocabulary stays in one place.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for RecordSyncOp.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Side labels for IncRemoteError.
const (
	SideObjectStore = "minio"
	SideRAG         = "dify"
)

var (
	scanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vnote_sync_scan_duration_seconds",
		Help:    "Duration of full three-way reconcile scans",
		Buckets: prometheus.DefBuckets,
	})

	syncOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vnote_sync_operations_total",
		Help: "Sync operations by verb and outcome",
	}, []string{"verb", "outcome"}) // verb=scan|items|push|pull|copy|delete_remote

	remoteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vnote_remote_errors_total",
		Help: "Failures talking to a remote side",
	}, []string{"side"}) // side=minio|dify

	ingestActiveTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vnote_ingest_active_tasks",
		Help: "Ingestion tasks currently in each pipeline stage",
	}, []string{"stage"})

	ingestTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vnote_ingest_tasks_total",
		Help: "Finished ingestion tasks by terminal stage",
	}, []string{"outcome"}) // outcome=SUCCESS|FAILED|CANCELLED
)

// ObserveScanDuration records one full reconcile scan.
func ObserveScanDuration(d time.Duration) { scanDurationSeconds.Observe(d.Seconds()) }

// RecordSyncOp counts one sync verb execution.
func RecordSyncOp(verb, outcome string) { syncOperationsTotal.WithLabelValues(verb, outcome).Inc() }

// IncRemoteError counts one failed remote interaction.
func IncRemoteError(side string) { remoteErrorsTotal.WithLabelValues(side).Inc() }

// IngestStageEntered and IngestStageLeft move a task between stage gauges.
// Pass stage transitions in pairs so the gauges stay balanced.
func IngestStageEntered(stage string) { ingestActiveTasks.WithLabelValues(stage).Inc() }

func IngestStageLeft(stage string) { ingestActiveTasks.WithLabelValues(stage).Dec() }

// RecordIngestOutcome counts a task reaching a terminal stage.
func RecordIngestOutcome(outcome string) { ingestTasksTotal.WithLabelValues(outcome).Inc() }
