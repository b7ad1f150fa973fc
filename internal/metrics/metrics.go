// Package metrics exposes Prometheus collectors for the whiteboard hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the hub's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	connectedClients prometheus.Gauge
	rooms            prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
	rejectedJoins    prometheus.Counter
	droppedMessages  *prometheus.CounterVec
	roomsSwept       prometheus.Counter
}

// New registers the collectors on reg under the given namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "whiteboard"
	}
	factory := promauto.With(reg)
	return &Metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of websocket sessions currently connected",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of rooms in the registry",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events handled, by event name",
		}, []string{"event"}),
		rejectedJoins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_joins_total",
			Help:      "join_room requests rejected because the room was full",
		}),
		droppedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Messages dropped, by reason",
		}, []string{"reason"}),
		roomsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_swept_total",
			Help:      "Idle rooms removed from the registry",
		}),
	}
}

// knownEvents bounds the label cardinality of events_total.
var knownEvents = map[string]bool{
	"create_room": true, "check_room": true, "join_room": true, "joined_room": true,
	"leave_room": true, "draw": true, "delete_stroke": true, "undo": true,
	"mouse_move": true, "send_msg": true, "send_reaction": true,
}

func (m *Metrics) EventHandled(event string) {
	if m == nil {
		return
	}
	if !knownEvents[event] {
		event = "unknown"
	}
	m.eventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) JoinRejected() {
	if m == nil {
		return
	}
	m.rejectedJoins.Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedMessages.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetConnectedClients(n int) {
	if m == nil {
		return
	}
	m.connectedClients.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Metrics) RoomsSwept(n int) {
	if m == nil {
		return
	}
	m.roomsSwept.Add(float64(n))
}
