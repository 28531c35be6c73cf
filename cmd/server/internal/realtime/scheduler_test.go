package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
)

func newTestScheduler(t *testing.T, writer DocumentWriter, opts SchedulerOptions) (*Scheduler, *Cache) {
	t.Helper()
	cache := NewCache(&fakeReader{docs: map[string]*documents.Document{}})
	return NewScheduler(cache, writer, slog.Default(), opts), cache
}

func TestDebounceCoalescesBurst(t *testing.T) {
	writer := &memWriter{}
	sched, cache := newTestScheduler(t, writer, SchedulerOptions{Window: 30 * time.Millisecond})

	var final json.RawMessage
	for i := 0; i < 5; i++ {
		final = json.RawMessage(`{"text":"` + string(rune('a'+i)) + `"}`)
		cache.ApplyEdit("doc-1", documents.KindNote, final)
		sched.MarkDirty("doc-1")
		time.Sleep(10 * time.Millisecond) // within the window, timer keeps resetting
	}

	require.Eventually(t, func() bool {
		return writer.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.JSONEq(t, string(final), string(writer.last().content))
	require.EqualValues(t, 5, writer.last().version)
	require.False(t, sched.Dirty("doc-1"))
}

func TestSeparateDocumentsFlushIndependently(t *testing.T) {
	writer := &memWriter{}
	sched, cache := newTestScheduler(t, writer, SchedulerOptions{Window: 20 * time.Millisecond})

	cache.ApplyEdit("doc-a", documents.KindNote, json.RawMessage(`{"text":"a"}`))
	cache.ApplyEdit("doc-b", documents.KindNote, json.RawMessage(`{"text":"b"}`))
	sched.MarkDirty("doc-a")
	sched.MarkDirty("doc-b")

	require.Eventually(t, func() bool {
		return writer.count() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFailedWriteStaysDirtyAndNotifies(t *testing.T) {
	writer := &memWriter{fail: errors.New("disk full")}

	var mu sync.Mutex
	var failedDocs []string
	sched, cache := newTestScheduler(t, writer, SchedulerOptions{
		Window:  10 * time.Millisecond,
		Retries: 1,
		Backoff: time.Millisecond,
		OnWriteFailed: func(docID string, err error) {
			mu.Lock()
			failedDocs = append(failedDocs, docID)
			mu.Unlock()
		},
	})

	cache.ApplyEdit("doc-1", documents.KindNote, json.RawMessage(`{"text":"x"}`))
	sched.MarkDirty("doc-1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failedDocs) == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, sched.Dirty("doc-1"))

	// storage recovers; the shutdown flush drains the retained dirty state
	writer.mu.Lock()
	writer.fail = nil
	writer.mu.Unlock()

	sched.Flush(context.Background())
	require.Equal(t, 1, writer.count())
	require.False(t, sched.Dirty("doc-1"))
}

func TestFlushPersistsPendingEdits(t *testing.T) {
	writer := &memWriter{}
	sched, cache := newTestScheduler(t, writer, SchedulerOptions{Window: time.Hour})

	cache.ApplyEdit("doc-1", documents.KindNote, json.RawMessage(`{"text":"x"}`))
	sched.MarkDirty("doc-1")
	require.Equal(t, 0, writer.count()) // window is far away

	sched.Flush(context.Background())
	require.Equal(t, 1, writer.count())
	require.Equal(t, "doc-1", writer.last().id)
}

func TestFlushWithNothingDirtyIsNoop(t *testing.T) {
	writer := &memWriter{}
	sched, _ := newTestScheduler(t, writer, SchedulerOptions{Window: time.Hour})
	sched.Flush(context.Background())
	require.Equal(t, 0, writer.count())
}
