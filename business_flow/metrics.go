package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK       = "ok"
	outcomePartial  = "partial"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

var (
	// Inbound vendor callbacks partitioned by kind and outcome
	callbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbacks_total",
			Help: "Total number of vendor callbacks handled",
		},
		[]string{"kind", "outcome"},
	)

	// Best-effort side effects that failed while handling a callback
	callbackStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callback_step_failures_total",
			Help: "Total number of failed callback side effects",
		},
		[]string{"step"},
	)

	// Orders moved by the fulfillment steps
	fulfillmentItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_step_items_total",
			Help: "Orders processed by reconciler steps",
		},
		[]string{"step", "outcome"},
	)
)
