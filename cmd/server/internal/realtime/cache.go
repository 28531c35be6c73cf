package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
	"github.com/workdeck/workdeck/cmd/server/internal/storage"
)

// DocumentReader is the read side of durable storage the cache fills
// itself from.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*documents.Document, error)
}

type cacheEntry struct {
	kind    documents.Kind
	content json.RawMessage
	version int64
}

// Cache holds the latest in-memory content per document id. There is at
// most one live copy per id; identity is the document id. The cache is the
// source of truth between debounced persistence writes, so reads that must
// observe unflushed edits (initial loads, rejoin refetches) go through it.
type Cache struct {
	mu      sync.Mutex
	store   DocumentReader
	entries map[string]*cacheEntry
}

// NewCache creates a cache backed by the given durable reader.
func NewCache(store DocumentReader) *Cache {
	return &Cache{store: store, entries: map[string]*cacheEntry{}}
}

// Get returns the live content for a document, seeding the cache from
// durable storage on first access. A document missing from storage seeds
// the kind's default empty content rather than erroring.
func (c *Cache) Get(ctx context.Context, docID string, kind documents.Kind) (json.RawMessage, int64, error) {
	c.mu.Lock()
	if e, ok := c.entries[docID]; ok {
		content, version := e.content, e.version
		c.mu.Unlock()
		return content, version, nil
	}
	c.mu.Unlock()

	// read-through outside the lock; durable reads may be slow
	doc, err := c.store.GetDocument(ctx, docID)
	var e *cacheEntry
	switch {
	case err == nil:
		e = &cacheEntry{kind: doc.Kind, content: doc.Content, version: doc.Version}
	case errors.Is(err, storage.ErrNotFound):
		e = &cacheEntry{kind: kind, content: documents.DefaultContent(kind), version: 0}
	default:
		return nil, 0, fmt.Errorf("seed cache for %s: %w", docID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another goroutine may have seeded concurrently; keep its entry
	if existing, ok := c.entries[docID]; ok {
		return existing.content, existing.version, nil
	}
	c.entries[docID] = e
	return e.content, e.version, nil
}

// ApplyEdit replaces a document's content wholesale and bumps the revision
// counter. Edits are whole-document replacements, not operational deltas;
// the last applied edit wins.
func (c *Cache) ApplyEdit(docID string, kind documents.Kind, content json.RawMessage) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[docID]
	if !ok {
		e = &cacheEntry{kind: kind}
		c.entries[docID] = e
	}
	e.content = content
	e.version++
	return e.version
}

// Put seeds or replaces an entry without bumping the revision.
func (c *Cache) Put(docID string, kind documents.Kind, content json.RawMessage, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[docID] = &cacheEntry{kind: kind, content: content, version: version}
}

// Snapshot returns the current content and revision without touching
// durable storage.
func (c *Cache) Snapshot(docID string) (json.RawMessage, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[docID]
	if !ok {
		return nil, 0, false
	}
	return e.content, e.version, true
}

// Forget drops a cache entry; used when a document is deleted.
func (c *Cache) Forget(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, docID)
}
