package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Send paths.
const (
	PathREST      = "rest"
	PathWebsocket = "ws"
	PathSystem    = "system"
)

var (
	MessagesStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_messages_stored_total",
		Help: "Messages persisted, by send path and message type",
	}, []string{"path", "type"})

	HardRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_guard_hard_rejects_total",
		Help: "Messages refused by the content guard, by reason",
	}, []string{"reason"})

	SoftFlags = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messaging_guard_soft_flags_total",
		Help: "Messages stored with the filtered flag set",
	})

	SystemMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_system_messages_total",
		Help: "Order acceptance notices, by outcome",
	}, []string{"outcome"})

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_ws_active_connections",
		Help: "Active websocket connections",
	})

	DroppedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messaging_ws_dropped_deliveries_total",
		Help: "Events dropped because a client send buffer was full",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(MessagesStored, HardRejects, SoftFlags, SystemMessages, Connections, DroppedDeliveries)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
