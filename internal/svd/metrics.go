package svd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamm_svd_sweeps_total",
		Help: "Total number of Jacobi sweeps that applied rotations",
	}, []string{"engine"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamm_svd_runs_total",
		Help: "Total number of finished SVD runs by how the iteration stopped",
	}, []string{"engine", "outcome"})
)
