package slp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slp_requests_total",
		Help: "operations started, by kind",
	}, []string{"op"})
	repliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slp_replies_total",
		Help: "discovery results delivered to callbacks",
	})
	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slp_duplicate_replies_total",
		Help: "replies suppressed as duplicates during convergence",
	})
	timeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slp_timeouts_total",
		Help: "operations that ended in a network timeout or error",
	})
)
