package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retransmitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slp_transport_retransmits_total",
		Help: "multicast requests retransmitted during convergence",
	})
	unicastRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slp_transport_unicast_retries_total",
		Help: "unicast directory agent requests retried after failure",
	})
)
