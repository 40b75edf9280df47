package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamm_cache_operations_total",
		Help: "Total number of sketch cache operations",
	}, []string{"operation", "status"})

	cacheLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gamm_cache_latency_seconds",
		Help:    "Latency of sketch cache operations",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})
)

func observe(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	cacheOperations.WithLabelValues(op, status).Inc()
	cacheLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
