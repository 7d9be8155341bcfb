package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var VoxelsEvaluatedMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "etasfit_voxels_evaluated_total",
		Help: "number of statistics voxels evaluated by the grid search",
	}, []string{"mode"})

var CacheBuildsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "etasfit_cache_builds_total",
		Help: "number of in-place cache builds",
	}, []string{"cache"})

var PoolAcquireMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "etasfit_pool_acquire_total",
		Help: "handle pool checkouts, split by whether a free handle was reused",
	}, []string{"pool", "result"})

var GridSearchProgressMetrics = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "etasfit_grid_search_progress_ratio",
		Help: "fraction of voxels completed by the running grid search",
	})

var GridSearchDurationMetrics = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "etasfit_grid_search_duration_seconds",
		Help:    "wall time of a grid search run",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
	}, []string{"mode", "result"})

func init() {
	prometheus.MustRegister(
		VoxelsEvaluatedMetrics,
		CacheBuildsMetrics,
		PoolAcquireMetrics,
		GridSearchProgressMetrics,
		GridSearchDurationMetrics,
	)
}
