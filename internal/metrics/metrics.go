package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	UpdatesPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "updates_pending",
		Help: "Number of UpdateRequests currently in the Pending phase",
	})

	UpdatesApproved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "updates_approved_total",
		Help: "UpdateRequests approved (externally or automatically)",
	})
	UpdatesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "updates_rejected_total",
		Help: "UpdateRequests rejected by an approver",
	})
	UpdatesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "updates_applied_total",
		Help: "Updates applied to workloads",
	}, []string{"kind"})
	UpdatesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "updates_failed_total",
		Help: "Updates that failed to apply",
	}, []string{"kind"})
	UpdatesSkippedInterval = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "updates_skipped_interval_total",
		Help: "Proposals dropped because the minimum update interval had not elapsed",
	})

	RollbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollbacks_total",
		Help: "Rollbacks executed",
	}, []string{"kind"})
	RollbacksManual = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollbacks_manual_total",
		Help: "Rollbacks triggered via the API",
	})
	RollbacksAutomatic = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollbacks_automatic_total",
		Help: "Rollbacks triggered by the health monitor",
	})
	RollbacksFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollbacks_failed_total",
		Help: "Rollback applies that failed",
	})

	PollingCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polling_cycles_total",
		Help: "Registry polling cycles started",
	})
	PollingErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polling_errors_total",
		Help: "Registry or chart repository query errors during polling",
	})
	PollingImagesChecked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polling_images_checked_total",
		Help: "Images and charts checked for new versions",
	})
	PollingNewTagsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polling_new_tags_found_total",
		Help: "New admissible versions discovered by polling",
	})
	PollingResourcesFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polling_resources_filtered_total",
		Help: "Workloads skipped by polling because their event source excludes it",
	})

	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notification deliveries that succeeded",
	})
	NotificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Notification deliveries that failed after retries",
	})
	NotificationsSlackSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_slack_sent_total",
		Help: "Notifications delivered to Slack",
	})
	NotificationsTeamsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_teams_sent_total",
		Help: "Notifications delivered to Microsoft Teams",
	})
	NotificationsWebhookSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_webhook_sent_total",
		Help: "Notifications delivered to the generic webhook sink",
	})

	ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of workload reconciliations",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	ctrlmetrics.Registry.MustRegister(
		UpdatesPending,
		UpdatesApproved,
		UpdatesRejected,
		UpdatesApplied,
		UpdatesFailed,
		UpdatesSkippedInterval,
		RollbacksTotal,
		RollbacksManual,
		RollbacksAutomatic,
		RollbacksFailed,
		PollingCycles,
		PollingErrors,
		PollingImagesChecked,
		PollingNewTagsFound,
		PollingResourcesFiltered,
		NotificationsSent,
		NotificationsFailed,
		NotificationsSlackSent,
		NotificationsTeamsSent,
		NotificationsWebhookSent,
		ReconcileDuration,
	)
}
