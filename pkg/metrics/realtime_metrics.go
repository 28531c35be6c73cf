// Package metrics provides Prometheus metrics for monitoring the realtime
// collaboration engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// activeSessions tracks the number of live websocket sessions.
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_sessions",
			Help: "Number of currently connected realtime sessions",
		},
	)

	// roomMembers tracks the number of (room, session) subscriptions.
	roomMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_room_subscriptions",
			Help: "Number of active room subscriptions across all sessions",
		},
	)

	// broadcastsTotal records edit fan-outs by document kind.
	// Labels:
	//   - kind: Document kind ("canvas", "note", "board")
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total number of edit broadcasts fanned out to rooms",
		},
		[]string{"kind"},
	)

	// persistenceWritesTotal records debounced persistence flushes.
	// Labels:
	//   - status: "success" or "failed"
	persistenceWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_persistence_writes_total",
			Help: "Total number of debounced document persistence writes",
		},
		[]string{"status"},
	)

	// persistenceWriteDuration records the latency of durable document writes.
	// Buckets: 1ms to 10s
	persistenceWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_persistence_write_duration_seconds",
			Help:    "Duration of durable document writes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// droppedDeliveriesTotal records deliveries skipped because a session's
	// send queue was full.
	droppedDeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_dropped_deliveries_total",
			Help: "Total number of outbound events dropped due to a full session queue",
		},
	)
)

func init() {
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(roomMembers)
	prometheus.MustRegister(broadcastsTotal)
	prometheus.MustRegister(persistenceWritesTotal)
	prometheus.MustRegister(persistenceWriteDuration)
	prometheus.MustRegister(droppedDeliveriesTotal)
}

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { activeSessions.Dec() }

// RoomJoined increments the room subscription gauge.
func RoomJoined() { roomMembers.Inc() }

// RoomLeft decrements the room subscription gauge by n.
func RoomLeft(n int) { roomMembers.Sub(float64(n)) }

// RecordBroadcast records a fan-out of one edit to a room.
func RecordBroadcast(kind string) {
	broadcastsTotal.WithLabelValues(kind).Inc()
}

// RecordPersistenceWrite records the outcome and duration of a durable write.
func RecordPersistenceWrite(status string, durationSeconds float64) {
	persistenceWritesTotal.WithLabelValues(status).Inc()
	persistenceWriteDuration.Observe(durationSeconds)
}

// RecordDroppedDelivery records an outbound event dropped on a full queue.
func RecordDroppedDelivery() { droppedDeliveriesTotal.Inc() }
