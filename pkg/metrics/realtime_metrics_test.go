package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestRecordBroadcast(t *testing.T) {
	// Reset metrics before test
	broadcastsTotal.Reset()

	RecordBroadcast("canvas")
	RecordBroadcast("canvas")
	RecordBroadcast("note")

	metric := &dto.Metric{}
	if err := broadcastsTotal.WithLabelValues("canvas").Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Expected counter value 2, got %f", metric.Counter.GetValue())
	}

	metric = &dto.Metric{}
	if err := broadcastsTotal.WithLabelValues("note").Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Expected counter value 1, got %f", metric.Counter.GetValue())
	}
}

func TestRecordPersistenceWrite(t *testing.T) {
	persistenceWritesTotal.Reset()

	RecordPersistenceWrite("success", 0.02)
	RecordPersistenceWrite("failed", 1.5)
	RecordPersistenceWrite("success", 0.01)

	metric := &dto.Metric{}
	if err := persistenceWritesTotal.WithLabelValues("success").Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Expected counter value 2, got %f", metric.Counter.GetValue())
	}
}

func TestSessionGauges(t *testing.T) {
	// Gauges are process-global; verify the deltas balance out.
	SessionOpened()
	SessionOpened()
	SessionClosed()
	SessionClosed()

	RoomJoined()
	RoomJoined()
	RoomLeft(2)

	metric := &dto.Metric{}
	if err := roomMembers.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 0 {
		t.Errorf("Expected gauge value 0, got %f", metric.Gauge.GetValue())
	}
}
