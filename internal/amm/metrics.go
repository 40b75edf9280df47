package amm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reductionSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamm_reduction_steps_total",
		Help: "Total number of setup/step/finish cycles",
	})

	columnsFolded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamm_reduction_columns_folded_total",
		Help: "Total number of source columns copied into sketch slots",
	})

	columnsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamm_reduction_columns_reclaimed_total",
		Help: "Total number of sketch columns freed by rank reduction",
	})

	strategyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gamm_strategy_duration_seconds",
		Help:    "Wall time of strategy runs",
		Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
	}, []string{"strategy"})

	strategyRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamm_strategy_runs_total",
		Help: "Total number of strategy runs",
	}, []string{"strategy", "status"})
)
