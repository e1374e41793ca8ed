package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	searchTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_transitions_total",
			Help:      "Applied search status transitions",
		},
		[]string{"from", "to"},
	)

	duplicateCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_callbacks_total",
			Help:      "Callbacks accepted without effect because the search had already moved",
		},
		[]string{"status"},
	)

	webhookRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejections_total",
			Help:      "Inbound callbacks rejected before reaching the state machine",
		},
		[]string{"reason"},
	)

	automationNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_notifications_total",
			Help:      "Outbound notifications to the automation system by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(searchTransitions, duplicateCallbacks, webhookRejections, automationNotifications)
}

// ObserveTransition counts an applied status change.
func ObserveTransition(from, to string) {
	searchTransitions.WithLabelValues(from, to).Inc()
}

// ObserveDuplicate counts a callback that was accepted as a no-op.
func ObserveDuplicate(status string) {
	duplicateCallbacks.WithLabelValues(status).Inc()
}

// ObserveRejection counts a webhook rejected for reason
// (signature, payload, not_configured, not_found, conflict).
func ObserveRejection(reason string) {
	webhookRejections.WithLabelValues(reason).Inc()
}

// ObserveNotification counts an outbound delivery attempt by result (delivered, failed).
func ObserveNotification(result string) {
	automationNotifications.WithLabelValues(result).Inc()
}
