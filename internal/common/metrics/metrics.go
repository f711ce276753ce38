// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler ticks executed",
		},
	)

	SchedulerCheckErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_check_errors_total",
			Help: "Total number of scheduler checks that returned an error",
		},
		[]string{"check"},
	)

	NotificationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_fired_total",
			Help: "Total number of notifications persisted by the dispatcher",
		},
		[]string{"type"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_suppressed_total",
			Help: "Notifications skipped by quiet hours, dedup or a taken log",
		},
		[]string{"type", "reason"},
	)

	NotificationDisplayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_display_failures_total",
			Help: "Total number of failed notification display attempts",
		},
		[]string{"channel"},
	)

	SyncSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_submissions_total",
			Help: "Sync submissions by outcome (sent, queued, disabled)",
		},
		[]string{"outcome"},
	)

	SyncRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_retries_total",
			Help: "Sync retry attempts by outcome (sent, failed, dropped)",
		},
		[]string{"outcome"},
	)

	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Number of records waiting to be mirrored",
		},
	)
)
