// Package metrics объявляет счетчики Prometheus панели.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentTransitions переходы статуса платежа. source: admin, recheck, ipn, poller, user.
	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Name:      "payment_transitions_total",
		Help:      "Payment status transitions by source.",
	}, []string{"source", "from", "to"})

	// VendorRequests обращения к платежному провайдеру.
	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Name:      "vendor_requests_total",
		Help:      "Payment vendor API calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// ChannelSyncs результаты синхронизации доступа к каналу.
	ChannelSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Name:      "channel_syncs_total",
		Help:      "Channel membership sync results by action.",
	}, []string{"action", "success"})

	// BroadcastDeliveries доставки сообщений рассылок.
	BroadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Name:      "broadcast_deliveries_total",
		Help:      "Broadcast message deliveries by result.",
	}, []string{"result"})

	// SchedulerRuns итерации фоновых задач.
	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Name:      "scheduler_runs_total",
		Help:      "Scheduler job runs by job and outcome.",
	}, []string{"job", "outcome"})
)

// Outcome переводит ошибку в метку ok/error.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
