package rides

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_transitions_total",
			Help: "Ride status transitions that were committed",
		},
		[]string{"to"},
	)

	acceptConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rides_accept_conflicts_total",
			Help: "Accept attempts that lost the race or hit an active-ride conflict",
		},
	)

	ratingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_ratings_total",
			Help: "Ratings recorded by role of the rater",
		},
		[]string{"role"},
	)

	nearbyQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rides_nearby_query_duration_seconds",
			Help:    "Latency of the nearby pending ride query",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	nearbyResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rides_nearby_results",
			Help:    "Number of pending rides returned per nearby query",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)
)
