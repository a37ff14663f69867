package models

import (
	"time"

	"github.com/aukilabs/octant/octree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sceneCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_count",
		Help: "The number of scenes.",
	})

	sceneCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_count_total",
		Help: "The total number of scenes.",
	})

	octreeRebuildCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "octree_rebuild_count",
		Help: "The number of octree rebuilds.",
	})

	octreeRebuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "octree_rebuild_latency",
		Help:    "The time taken by an octree rebuild, in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	octreeOctants = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "octree_octants",
		Help:    "The number of octants of a rebuilt octree.",
		Buckets: prometheus.ExponentialBuckets(1, 8, 7),
	})

	octreeLeaves = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "octree_leaves",
		Help:    "The number of occupied leaves of a rebuilt octree.",
		Buckets: prometheus.ExponentialBuckets(1, 8, 7),
	})
)

func instrumentIncreaseSceneGauge() {
	sceneCount.Inc()
}

func instrumentDecreaseSceneGauge() {
	sceneCount.Dec()
}

func instrumentCountScene() {
	sceneCountTotal.Inc()
}

func instrumentRebuild(d time.Duration, t *octree.Tree) {
	octreeRebuildCount.Inc()
	octreeRebuildLatency.Observe(d.Seconds())
	octreeOctants.Observe(float64(t.OctantCount()))
	octreeLeaves.Observe(float64(len(t.Leaves())))
}
