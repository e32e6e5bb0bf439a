package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound vendor calls partitioned by vendor, operation and outcome
	vendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_requests_total",
			Help: "Total number of outbound vendor requests",
		},
		[]string{"vendor", "op", "outcome"},
	)

	vendorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vendor_request_duration_seconds",
			Help:    "Outbound vendor request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor", "op"},
	)
)

func observeVendorCall(vendor, op string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	vendorRequestsTotal.WithLabelValues(vendor, op, outcome).Inc()
	vendorRequestDuration.WithLabelValues(vendor, op).Observe(seconds)
}
