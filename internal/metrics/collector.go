// Package metrics exposes the broker's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "cotimer"

// Label names.
const (
	labelType = "type"
	labelKind = "kind"
)

// Collector holds every metric the broker reports. Gauges track live state
// (sessions, users, sockets); counters track message flow and reaping.
type Collector struct {
	// SessionsActive tracks the number of sessions currently held in memory.
	SessionsActive prometheus.Gauge

	// ClientsConnected tracks users with at least one open socket.
	ClientsConnected prometheus.Gauge

	// SocketsOpen tracks open WebSocket connections.
	SocketsOpen prometheus.Gauge

	// MessagesReceived counts inbound messages per message type.
	MessagesReceived *prometheus.CounterVec

	// MessagesSent counts direct outbound messages (acks, errors, pongs)
	// per message type.
	MessagesSent *prometheus.CounterVec

	// Broadcasts counts fan-out deliveries per message type. One broadcast
	// to N sockets counts N.
	Broadcasts *prometheus.CounterVec

	// Errors counts rejected inbound messages per error kind.
	Errors *prometheus.CounterVec

	// SessionsCreated counts sessions created over the process lifetime.
	SessionsCreated prometheus.Counter

	// SessionsReaped counts sessions removed by the cleanup loop.
	SessionsReaped prometheus.Counter

	// UsersReaped counts offline users removed by the cleanup loop.
	UsersReaped prometheus.Counter
}

// NewCollector creates a Collector registered against reg. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsActive,
		c.ClientsConnected,
		c.SocketsOpen,
		c.MessagesReceived,
		c.MessagesSent,
		c.Broadcasts,
		c.Errors,
		c.SessionsCreated,
		c.SessionsReaped,
		c.UsersReaped,
	)

	return c
}

// newMetrics creates all metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently held in memory.",
		}),

		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Number of users with at least one open socket.",
		}),

		SocketsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sockets_open",
			Help:      "Number of open WebSocket connections.",
		}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total inbound messages by type.",
		}, []string{labelType}),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total direct outbound messages by type.",
		}, []string{labelType}),

		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total broadcast deliveries by type.",
		}, []string{labelType}),

		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total rejected inbound messages by error kind.",
		}, []string{labelKind}),

		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total sessions created.",
		}),

		SessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_reaped_total",
			Help:      "Total sessions removed by the cleanup loop.",
		}),

		UsersReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_reaped_total",
			Help:      "Total offline users removed by the cleanup loop.",
		}),
	}
}

// IncReceived increments the inbound counter for a message type.
func (c *Collector) IncReceived(msgType string) {
	c.MessagesReceived.WithLabelValues(msgType).Inc()
}

// IncSent increments the direct outbound counter for a message type.
func (c *Collector) IncSent(msgType string) {
	c.MessagesSent.WithLabelValues(msgType).Inc()
}

// IncBroadcast increments the broadcast delivery counter for a message type.
func (c *Collector) IncBroadcast(msgType string) {
	c.Broadcasts.WithLabelValues(msgType).Inc()
}

// IncError increments the rejected message counter for an error kind.
func (c *Collector) IncError(kind string) {
	c.Errors.WithLabelValues(kind).Inc()
}

// SessionCreated records a new session.
func (c *Collector) SessionCreated() {
	c.SessionsCreated.Inc()
	c.SessionsActive.Inc()
}

// SessionReaped records a session removed by the cleanup loop.
func (c *Collector) SessionReaped() {
	c.SessionsReaped.Inc()
	c.SessionsActive.Dec()
}

// UserReaped records an offline user removed by the cleanup loop.
func (c *Collector) UserReaped() {
	c.UsersReaped.Inc()
}

// SocketOpened records an accepted WebSocket connection.
func (c *Collector) SocketOpened() {
	c.SocketsOpen.Inc()
}

// SocketClosed records a closed WebSocket connection.
func (c *Collector) SocketClosed() {
	c.SocketsOpen.Dec()
}

// ClientConnected records a user transitioning to online.
func (c *Collector) ClientConnected() {
	c.ClientsConnected.Inc()
}

// ClientDisconnected records a user transitioning to offline.
func (c *Collector) ClientDisconnected() {
	c.ClientsConnected.Dec()
}
