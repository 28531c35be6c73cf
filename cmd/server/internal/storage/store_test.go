package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &documents.Document{
		ID:        "canvas-42",
		Kind:      documents.KindCanvas,
		ProjectID: "proj-1",
		Content:   json.RawMessage(`{"nodes":[],"edges":[]}`),
	}
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "canvas-42")
	require.NoError(t, err)
	require.Equal(t, documents.KindCanvas, got.Kind)
	require.Equal(t, "proj-1", got.ProjectID)
	require.JSONEq(t, `{"nodes":[],"edges":[]}`, string(got.Content))
	require.EqualValues(t, 0, got.Version)
}

func TestGetDocumentMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &documents.Document{
		ID:        "note-1",
		Kind:      documents.KindNote,
		ProjectID: "proj-1",
		Content:   json.RawMessage(`{}`),
	}
	require.NoError(t, s.CreateDocument(ctx, doc))

	require.NoError(t, s.SaveContent(ctx, "note-1", json.RawMessage(`{"blocks":[1]}`), 3))

	got, err := s.GetDocument(ctx, "note-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"blocks":[1]}`, string(got.Content))
	require.EqualValues(t, 3, got.Version)

	err = s.SaveContent(ctx, "missing", json.RawMessage(`{}`), 1)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestListByProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.CreateDocument(ctx, &documents.Document{
			ID: id, Kind: documents.KindBoard, ProjectID: "p1", Content: json.RawMessage(`{"items":[]}`),
		}))
	}
	require.NoError(t, s.CreateDocument(ctx, &documents.Document{
		ID: "c", Kind: documents.KindBoard, ProjectID: "p2", Content: json.RawMessage(`{"items":[]}`),
	}))

	docs, err := s.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	docs, err = s.ListByProject(ctx, "empty")
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, &documents.Document{
		ID: "gone", Kind: documents.KindNote, ProjectID: "p1", Content: json.RawMessage(`{}`),
	}))
	require.NoError(t, s.DeleteDocument(ctx, "gone"))
	require.ErrorIs(t, s.DeleteDocument(ctx, "gone"), ErrNotFound)
}
