package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
	"github.com/workdeck/workdeck/pkg/metrics"
)

// Options configures the engine.
type Options struct {
	DebounceWindow    time.Duration
	WriteRetries      int
	WriteRetryBackoff time.Duration
}

// Hub is the single event loop of the engine. All registry and edit
// mutations are executed serially on one goroutine, so edits to a document
// are applied and fanned out in arrival order and no locking is needed on
// the hot path. Durable writes run off the loop; the loop never blocks
// on I/O.
type Hub struct {
	registry  *Registry
	cache     *Cache
	relay     *Relay
	scheduler *Scheduler
	logger    *slog.Logger

	commands chan func()
	quit     chan struct{}
}

// NewHub assembles the engine around a cache and a durable writer.
func NewHub(cache *Cache, writer DocumentWriter, logger *slog.Logger, opts Options) *Hub {
	registry := NewRegistry()
	relay := NewRelay(registry)

	h := &Hub{
		registry: registry,
		cache:    cache,
		relay:    relay,
		logger:   logger,
		commands: make(chan func(), 256),
		quit:     make(chan struct{}),
	}

	h.scheduler = NewScheduler(cache, writer, logger, SchedulerOptions{
		Window:  opts.DebounceWindow,
		Retries: opts.WriteRetries,
		Backoff: opts.WriteRetryBackoff,
		OnWriteFailed: func(docID string, err error) {
			// the write already exhausted its retries; tell the room
			relay.Broadcast(docID, Envelope{
				Type:  TypeSaveFailed,
				Room:  docID,
				Error: "changes may not be saved",
			})
		},
	})
	return h
}

// Run processes commands until ctx is cancelled. It must be running for
// any hub method to make progress.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case cmd := <-h.commands:
			cmd()
		case <-ctx.Done():
			return
		}
	}
}

// do executes fn on the event loop and waits for completion. Waiting keeps
// each caller's operations in submission order, which is what defines the
// last-write-wins tie-break between sessions.
func (h *Hub) do(fn func()) {
	done := make(chan struct{})
	select {
	case h.commands <- func() {
		fn()
		close(done)
	}:
	case <-h.quit:
		return
	}
	select {
	case <-done:
	case <-h.quit:
	}
}

// Register announces a new live session.
func (h *Hub) Register(s *Session) {
	h.do(func() {
		metrics.SessionOpened()
		h.logger.Info("session opened", "session_id", s.ID, "user", s.Username)
	})
}

// Unregister tears down a session: every room membership is removed so no
// further fan-out can target the connection.
func (h *Hub) Unregister(s *Session) {
	h.do(func() {
		h.registry.LeaveAll(s)
		s.CloseQuietly()
		metrics.SessionClosed()
		h.logger.Info("session closed", "session_id", s.ID, "user", s.Username)
	})
}

// Join subscribes an authorized session to a document room. Authorization
// is the caller's precondition; the hub does not re-check it.
func (h *Hub) Join(s *Session, docID string) {
	h.do(func() {
		h.registry.Join(docID, s)
	})
}

// Leave unsubscribes a session from a room.
func (h *Hub) Leave(s *Session, docID string) {
	h.do(func() {
		h.registry.Leave(docID, s)
	})
}

// Save applies a whole-document edit: the cache takes the new content, the
// relay fans it out to everyone else in the room, and the scheduler
// restarts the document's debounce timer.
func (h *Hub) Save(s *Session, docID string, kind documents.Kind, content json.RawMessage) {
	h.do(func() {
		version := h.cache.ApplyEdit(docID, kind, content)
		h.relay.Publish(docID, string(kind), s, content)
		h.scheduler.MarkDirty(docID)
		h.logger.Debug("edit applied", "doc_id", docID, "kind", kind, "version", version, "user", s.Username)
	})
}

// Cache exposes the document state cache for read paths that must observe
// unflushed edits.
func (h *Hub) Cache() *Cache {
	return h.cache
}

// Scheduler exposes the persistence scheduler for the shutdown flush.
func (h *Hub) Scheduler() *Scheduler {
	return h.scheduler
}
