package routing

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type lookupMetrics struct {
	matched   prometheus.Counter
	unmatched prometheus.Counter
}

var (
	lookupMetricsInstance *lookupMetrics
	lookupMetricsOnce     sync.Once
)

// lookups returns the process-wide route lookup counters.
func lookups() *lookupMetrics {
	lookupMetricsOnce.Do(func() {
		total := promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cubex",
				Subsystem: "router",
				Name:      "lookups_total",
				Help:      "Total number of route lookups by result",
			},
			[]string{"result"},
		)
		lookupMetricsInstance = &lookupMetrics{
			matched:   total.WithLabelValues("matched"),
			unmatched: total.WithLabelValues("unmatched"),
		}
	})
	return lookupMetricsInstance
}
