package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DownloadMetrics instruments the download queue and transfer workers.
// A nil *DownloadMetrics is valid and all call sites must check for it,
// so metrics can be disabled with zero overhead.
type DownloadMetrics struct {
	// JobsProcessed counts finished queue jobs by outcome:
	// "ok", "retry", "exhausted", "unrecoverable".
	JobsProcessed *prometheus.CounterVec

	// QueueDepth tracks jobs waiting in the queue.
	QueueDepth prometheus.Gauge

	// TransferDuration observes wall time of single transfer attempts.
	TransferDuration prometheus.Histogram

	// BytesTransferred counts payload bytes written to local storage.
	BytesTransferred prometheus.Counter

	// ActiveTransfers tracks transfers currently streaming.
	ActiveTransfers prometheus.Gauge

	// DownloadsAdmitted counts admission decisions by outcome:
	// "accepted", "quota_exceeded", "conflict", "rejected".
	DownloadsAdmitted *prometheus.CounterVec
}

// NewDownloadMetrics creates download collectors registered on reg.
func NewDownloadMetrics(reg prometheus.Registerer) *DownloadMetrics {
	return &DownloadMetrics{
		JobsProcessed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelcache_download_jobs_total",
				Help: "Total number of processed download jobs by outcome",
			},
			[]string{"outcome"},
		),
		QueueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "reelcache_download_queue_depth",
				Help: "Number of download jobs waiting in the queue",
			},
		),
		TransferDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "reelcache_transfer_duration_seconds",
				Help: "Duration of single transfer attempts in seconds",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800,
				},
			},
		),
		BytesTransferred: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "reelcache_transfer_bytes_total",
				Help: "Total payload bytes written to local storage",
			},
		),
		ActiveTransfers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "reelcache_active_transfers",
				Help: "Number of transfers currently streaming",
			},
		),
		DownloadsAdmitted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelcache_downloads_admitted_total",
				Help: "Total number of download admission decisions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordAdmission records an admission decision. Safe on nil receiver.
func (m *DownloadMetrics) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.DownloadsAdmitted.WithLabelValues(outcome).Inc()
}

// RecordBytes records payload bytes written. Safe on nil receiver.
func (m *DownloadMetrics) RecordBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTransferred.Add(float64(n))
}
