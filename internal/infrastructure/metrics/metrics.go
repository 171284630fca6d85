package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sync layer's Prometheus collectors.
type Metrics struct {
	WebhooksReceived  prometheus.Counter
	WebhooksDuplicate prometheus.Counter
	WebhooksMalformed prometheus.Counter
	WebhooksFailed    prometheus.Counter

	TasksProcessed  *prometheus.CounterVec // label: status
	UpdatesApplied  *prometheus.CounterVec // label: strategy
	PlatformCalls   *prometheus.CounterVec // label: status_class
	ProcessDuration prometheus.Histogram
}

// New registers and returns the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhooksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_webhooks_received_total",
			Help: "Accepted inbound webhook notifications.",
		}),
		WebhooksDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_webhooks_duplicate_total",
			Help: "Notifications rejected as duplicates by request id.",
		}),
		WebhooksMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_webhooks_malformed_total",
			Help: "Notifications rejected by structural validation.",
		}),
		WebhooksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_webhooks_failed_total",
			Help: "Notifications whose processing ended in failure.",
		}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_tasks_processed_total",
			Help: "Sync task attempts by resulting status.",
		}, []string{"status"}),
		UpdatesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_updates_applied_total",
			Help: "Partial updates executed by strategy.",
		}, []string{"strategy"}),
		PlatformCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_platform_calls_total",
			Help: "Platform API calls by HTTP status class.",
		}, []string{"status_class"}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_webhook_process_duration_seconds",
			Help:    "Notification processing duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.WebhooksReceived,
		m.WebhooksDuplicate,
		m.WebhooksMalformed,
		m.WebhooksFailed,
		m.TasksProcessed,
		m.UpdatesApplied,
		m.PlatformCalls,
		m.ProcessDuration,
	)
	return m
}

// Nop returns collectors registered nowhere, for tests.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
