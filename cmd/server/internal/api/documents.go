package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
	"github.com/workdeck/workdeck/cmd/server/internal/domain/projects"
	"github.com/workdeck/workdeck/cmd/server/internal/storage"
)

// stateCache is the slice of the realtime cache the REST read path needs:
// document reads must observe edits that have not been flushed to storage
// yet, or a client refetching after a reconnect would see stale content.
type stateCache interface {
	Snapshot(docID string) (json.RawMessage, int64, bool)
	Forget(docID string)
}

// HandleCreateDocument POST /api/v1/projects/:id/documents
// Required scope: users.ScopeDocWrite
func HandleCreateDocument(store *storage.DocumentStore, reg *projects.ProjectRegistry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Kind string `json:"kind"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}
		kind := documents.Kind(req.Kind)
		if !kind.Valid() {
			badRequestResponse(c, "unknown document kind")
			return
		}

		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if !p.HasMember(currentUser(c)) {
			forbiddenResponse(c, "not a project member")
			return
		}

		now := time.Now()
		doc := &documents.Document{
			ID:        uuid.NewString(),
			Kind:      kind,
			ProjectID: p.ID,
			Content:   documents.DefaultContent(kind),
			Version:   0,
			UpdatedAt: now,
		}
		if err := store.CreateDocument(c.Request.Context(), doc); err != nil {
			logger.Error("create document failed", "project_id", p.ID, "error", err)
			internalErrorResponse(c, err)
			return
		}
		logger.Info("document created", "doc_id", doc.ID, "kind", doc.Kind, "project_id", p.ID)
		c.JSON(http.StatusCreated, gin.H{"data": doc})
	}
}

// HandleListDocuments GET /api/v1/projects/:id/documents
// Required scope: users.ScopeDocRead
func HandleListDocuments(store *storage.DocumentStore, reg *projects.ProjectRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if !p.HasMember(currentUser(c)) {
			forbiddenResponse(c, "not a project member")
			return
		}

		docs, err := store.ListByProject(c.Request.Context(), p.ID)
		if err != nil {
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": docs})
	}
}

// HandleGetDocument GET /api/v1/documents/:id
// Serves the live content: the realtime cache wins over the durable row so
// reads between debounce flushes are never stale.
// Required scope: users.ScopeDocRead
func HandleGetDocument(store *storage.DocumentStore, reg *projects.ProjectRegistry, cache stateCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				notFoundResponse(c, "document")
				return
			}
			internalErrorResponse(c, err)
			return
		}

		if p := reg.Get(doc.ProjectID); p == nil || !p.HasMember(currentUser(c)) {
			forbiddenResponse(c, "not a project member")
			return
		}

		if content, version, ok := cache.Snapshot(doc.ID); ok {
			doc.Content = content
			doc.Version = version
		}
		c.JSON(http.StatusOK, gin.H{"data": doc})
	}
}

// HandleDeleteDocument DELETE /api/v1/documents/:id
// Required scope: users.ScopeDocWrite
func HandleDeleteDocument(store *storage.DocumentStore, reg *projects.ProjectRegistry, cache stateCache, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				notFoundResponse(c, "document")
				return
			}
			internalErrorResponse(c, err)
			return
		}

		p := reg.Get(doc.ProjectID)
		if p == nil || p.Owner != currentUser(c) {
			forbiddenResponse(c, "only the project owner can delete documents")
			return
		}

		if err := store.DeleteDocument(c.Request.Context(), doc.ID); err != nil {
			internalErrorResponse(c, err)
			return
		}
		cache.Forget(doc.ID)
		logger.Info("document deleted", "doc_id", doc.ID, "by", currentUser(c))
		c.Status(http.StatusNoContent)
	}
}
