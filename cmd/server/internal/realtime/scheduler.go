package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/workdeck/workdeck/pkg/metrics"
)

// DocumentWriter is the write side of durable storage the scheduler
// flushes settled documents to.
type DocumentWriter interface {
	SaveContent(ctx context.Context, id string, content json.RawMessage, version int64) error
}

// Scheduler coalesces bursts of edits into infrequent durable writes. Each
// document id owns one timer; every edit resets it and the write fires only
// after a full quiet window, reflecting the state at the moment the window
// closed. A failed write keeps the document dirty so the next edit (or the
// shutdown flush) tries again.
type Scheduler struct {
	window  time.Duration
	retries int
	backoff time.Duration

	cache  *Cache
	writer DocumentWriter
	logger *slog.Logger

	// onWriteFailed lets the hub warn room members that their changes may
	// not be saved. May be nil.
	onWriteFailed func(docID string, err error)

	mu     sync.Mutex
	timers map[string]*time.Timer
	dirty  map[string]bool

	flights sync.WaitGroup
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Window        time.Duration
	Retries       int
	Backoff       time.Duration
	OnWriteFailed func(docID string, err error)
}

// NewScheduler creates a debounced persistence scheduler.
func NewScheduler(cache *Cache, writer DocumentWriter, logger *slog.Logger, opts SchedulerOptions) *Scheduler {
	window := opts.Window
	if window <= 0 {
		window = time.Second
	}
	return &Scheduler{
		window:        window,
		retries:       opts.Retries,
		backoff:       opts.Backoff,
		cache:         cache,
		writer:        writer,
		logger:        logger,
		onWriteFailed: opts.OnWriteFailed,
		timers:        map[string]*time.Timer{},
		dirty:         map[string]bool{},
	}
}

// MarkDirty notes an edit to a document and restarts its debounce timer.
func (s *Scheduler) MarkDirty(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty[docID] = true
	if t, ok := s.timers[docID]; ok {
		t.Stop()
	}
	s.timers[docID] = time.AfterFunc(s.window, func() {
		s.flights.Add(1)
		defer s.flights.Done()
		s.flushOne(context.Background(), docID)
	})
}

// Dirty reports whether a document has unflushed edits.
func (s *Scheduler) Dirty(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty[docID]
}

func (s *Scheduler) flushOne(ctx context.Context, docID string) {
	s.mu.Lock()
	delete(s.timers, docID)
	if !s.dirty[docID] {
		s.mu.Unlock()
		return
	}
	delete(s.dirty, docID)
	s.mu.Unlock()

	if err := s.writeWithRetry(ctx, docID); err != nil {
		// keep the document dirty: the next edit or the shutdown flush
		// retries; silence here would be data loss
		s.mu.Lock()
		s.dirty[docID] = true
		s.mu.Unlock()

		s.logger.Error("persistence write failed", "doc_id", docID, "error", err)
		if s.onWriteFailed != nil {
			s.onWriteFailed(docID, err)
		}
	}
}

func (s *Scheduler) writeWithRetry(ctx context.Context, docID string) error {
	content, version, ok := s.cache.Snapshot(docID)
	if !ok {
		return nil // nothing cached, nothing to write
	}

	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}
		start := time.Now()
		err = s.writer.SaveContent(ctx, docID, content, version)
		if err == nil {
			metrics.RecordPersistenceWrite("success", time.Since(start).Seconds())
			return nil
		}
		metrics.RecordPersistenceWrite("failed", time.Since(start).Seconds())
	}
	return err
}

// Flush synchronously persists every dirty document. Called on graceful
// shutdown so no settled edits are lost; pending timers are cancelled
// first and in-flight timer fires are waited out.
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	for docID, t := range s.timers {
		t.Stop()
		delete(s.timers, docID)
	}
	s.mu.Unlock()

	s.flights.Wait()

	s.mu.Lock()
	pending := make([]string, 0, len(s.dirty))
	for docID := range s.dirty {
		pending = append(pending, docID)
	}
	s.mu.Unlock()

	for _, docID := range pending {
		s.flushOne(ctx, docID)
	}
}
