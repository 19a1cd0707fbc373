package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_worker_jobs_enqueued_total",
			Help: "Total number of jobs accepted into the queue",
		},
		[]string{"source"},
	)

	JobsDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_worker_jobs_deduped_total",
			Help: "Triggers merged into a queued job or dropped for the active one",
		},
		[]string{"source"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_worker_jobs_finished_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"result"},
	)

	JobsRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_worker_jobs_requeued_total",
			Help: "Jobs put back after the source vanished during the stability check",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_worker_queue_depth",
			Help: "Number of jobs waiting behind the active one",
		},
	)

	JobActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_worker_job_active",
			Help: "1 while a job is being processed",
		},
	)
)

// Encode metrics
var (
	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_worker_encode_duration_seconds",
			Help:    "Wall time to produce and validate a full rendition",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		},
	)

	EncodeSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_worker_encode_skipped_total",
			Help: "Jobs that reused an existing valid rendition",
		},
	)

	StabilityWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_worker_stability_wait_seconds",
			Help:    "Time spent waiting for an upload to stop changing",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"result"},
	)
)

// Scanner and watcher metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_worker_scans_total",
			Help: "Database scan passes",
		},
		[]string{"status"},
	)

	ScanEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_worker_scan_enqueued_total",
			Help: "Jobs enqueued by the database scanner",
		},
	)

	WatchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_worker_watch_events_total",
			Help: "Filesystem events handled by the watcher",
		},
		[]string{"op"},
	)

	BrokerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_worker_broker_messages_total",
			Help: "Upload notifications consumed from the broker",
		},
		[]string{"status"},
	)
)
