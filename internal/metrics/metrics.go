// Package metrics exposes prometheus instrumentation for the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAppended counts accepted appends by message kind.
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcore",
		Name:      "messages_appended_total",
		Help:      "Messages accepted into room logs.",
	}, []string{"kind"})

	// AppendRejected counts appends rejected by validation or throttling.
	AppendRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcore",
		Name:      "appends_rejected_total",
		Help:      "Appends rejected, by domain error code.",
	}, []string{"code"})

	// EventsDropped counts events dropped on slow subscriber channels.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Name:      "events_dropped_total",
		Help:      "Events dropped because a subscriber could not keep up.",
	})

	// FeedEvents counts events consumed from the inbound feed.
	FeedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatcore",
		Name:      "feed_events_total",
		Help:      "Events consumed from the inbound feed.",
	})

	// Subscriptions tracks live room event subscriptions.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatcore",
		Name:      "subscriptions",
		Help:      "Active room event subscriptions.",
	})
)
