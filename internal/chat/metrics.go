package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	// connsActive gauges sessions that reached the Joined state and have not
	// closed yet.
	connsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Current number of joined chat sessions.",
		},
	)

	// messagesTotal counts submissions by outcome: sent, duplicate, rejected, failed.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total number of chat message submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// deliveriesTotal counts per-session fan-out attempts: queued or dropped.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Total number of newMessage deliveries by result.",
		},
		[]string{"result"},
	)

	roomsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Total number of chat rooms created on first message.",
		},
	)
)

func init() {
	prometheus.MustRegister(connsActive, messagesTotal, deliveriesTotal, roomsCreated)
}
