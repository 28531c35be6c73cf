package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/workdeck/workdeck/pkg/metrics"
)

// wire is the transport a session writes outbound frames to. Implemented by
// *websocket.Conn in the handler and by test doubles in tests.
type wire interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one authenticated live connection. Outbound frames go through
// a bounded send queue drained by a single writer goroutine, so broadcasts
// from the hub never block and per-session delivery order is preserved.
type Session struct {
	ID       string
	Username string

	conn wire
	send chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession constructs a Session with a bounded send queue.
func NewSession(username string, conn wire, sendQueueSize int) *Session {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Session{
		ID:       uuid.NewString(),
		Username: username,
		conn:     conn,
		send:     make(chan Envelope, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Deliver queues an outbound envelope. It never blocks: when the queue is
// full the session is considered too slow and is closed, which is cheaper
// for everyone than stalling the fan-out path.
func (s *Session) Deliver(env Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- env:
		return true
	default:
		metrics.RecordDroppedDelivery()
		s.CloseQuietly()
		return false
	}
}

// WritePump drains the send queue to the connection. It runs as the
// session's single writer goroutine and exits when the session closes.
func (s *Session) WritePump() {
	for {
		select {
		case env := <-s.send:
			if err := s.conn.WriteJSON(env); err != nil {
				s.CloseQuietly()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Done returns a channel closed when the session is shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseQuietly signals shutdown and closes the transport (idempotent).
func (s *Session) CloseQuietly() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
