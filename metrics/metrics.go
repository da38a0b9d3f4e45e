package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	MessagesAppended     prometheus.Counter
	MessagesMarkedRead   prometheus.Counter
	ConversationsCleared prometheus.Counter
	FanoutDeliveries     prometheus.Counter
	FanoutMisses         prometheus.Counter
	LiveSessions         prometheus.Gauge
}

// New creates the chat collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medichat_messages_appended_total",
			Help: "Messages durably appended to the message log.",
		}),
		MessagesMarkedRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medichat_messages_marked_read_total",
			Help: "Messages transitioned from unread to read.",
		}),
		ConversationsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medichat_conversations_cleared_total",
			Help: "Clear requests served.",
		}),
		FanoutDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medichat_fanout_deliveries_total",
			Help: "new_message events queued to live sessions.",
		}),
		FanoutMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medichat_fanout_misses_total",
			Help: "Committed messages whose receiver had no live session.",
		}),
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medichat_live_sessions",
			Help: "Websocket sessions currently bound to a channel.",
		}),
	}
	reg.MustRegister(
		m.MessagesAppended,
		m.MessagesMarkedRead,
		m.ConversationsCleared,
		m.FanoutDeliveries,
		m.FanoutMisses,
		m.LiveSessions,
	)
	return m
}
