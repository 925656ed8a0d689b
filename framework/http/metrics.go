package http

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type dispatchMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	dispatchMetricsInstance *dispatchMetrics
	dispatchMetricsOnce     sync.Once
)

// metrics returns the process-wide dispatcher metrics.
func metrics() *dispatchMetrics {
	dispatchMetricsOnce.Do(func() {
		dispatchMetricsInstance = &dispatchMetrics{
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "cubex",
					Subsystem: "dispatcher",
					Name:      "requests_total",
					Help:      "Total number of dispatched requests by route pattern, method and status",
				},
				[]string{"route", "method", "status"},
			),
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "cubex",
					Subsystem: "dispatcher",
					Name:      "request_duration_seconds",
					Help:      "Time spent serving dispatched requests by route pattern",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}
	})
	return dispatchMetricsInstance
}
