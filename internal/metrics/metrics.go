package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unotify_events_consumed_total",
			Help: "Consumed event messages by topic and outcome",
		},
		[]string{"topic", "outcome"}, // delivered|duplicate|dead_lettered
	)

	FanoutRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unotify_fanout_rows_total",
			Help: "Inbox rows written by recipient kind",
		},
		[]string{"kind"}, // employee|role
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unotify_delivery_retries_total",
			Help: "Retry attempts on transient processing failures by topic",
		},
		[]string{"topic"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsConsumedTotal,
		FanoutRowsTotal,
		RetriesTotal,
	)
}
