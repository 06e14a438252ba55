// Package metrics registers labwatch Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labwatch_feed_events_decoded_total",
		Help: "Feed lines decoded into events, by event type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labwatch_feed_events_dropped_total",
		Help: "Feed lines dropped because they could not be decoded",
	})

	ContainerMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labwatch_container_merges_total",
		Help: "Container events merged into the lab index",
	})

	InterfaceUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labwatch_interface_updates_total",
		Help: "Interface records written by the tracker",
	})

	NotificationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labwatch_notifications_fired_total",
		Help: "Debounced data-changed notifications delivered to listeners",
	})

	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labwatch_poll_cycles_total",
		Help: "Polling fallback inspection cycles, by outcome",
	}, []string{"outcome"})
)
