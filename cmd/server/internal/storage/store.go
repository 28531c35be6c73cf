// Package storage provides the durable document store backed by SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore persists documents in a SQLite database. It is safe for
// concurrent use; database/sql serializes access to the single connection.
type DocumentStore struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &DocumentStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DocumentStore) init() error {
	_, err := s.db.Exec(
		`CREATE TABLE IF NOT EXISTS documents (
			id         TEXT NOT NULL PRIMARY KEY,
			kind       TEXT NOT NULL,
			project_id TEXT NOT NULL,
			content    TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
	)
	if err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id)`)
	if err != nil {
		return fmt.Errorf("ensure project index: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// CreateDocument inserts a new document row.
func (s *DocumentStore) CreateDocument(ctx context.Context, doc *documents.Document) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, kind, project_id, content, version, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Kind), doc.ProjectID, string(doc.Content), doc.Version, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument loads one document by id; ErrNotFound when no row exists.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*documents.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, project_id, content, version, updated_at FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// SaveContent replaces a document's content and version. This is the
// debounced persistence write; it reflects the settled in-memory state.
func (s *DocumentStore) SaveContent(ctx context.Context, id string, content json.RawMessage, version int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = ?, version = ?, updated_at = ? WHERE id = ?`,
		string(content), version, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByProject returns all documents owned by a project.
func (s *DocumentStore) ListByProject(ctx context.Context, projectID string) ([]*documents.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, project_id, content, version, updated_at FROM documents WHERE project_id = ? ORDER BY updated_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := []*documents.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document row.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*documents.Document, error) {
	var doc documents.Document
	var kind, content string
	if err := row.Scan(&doc.ID, &kind, &doc.ProjectID, &content, &doc.Version, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Kind = documents.Kind(kind)
	doc.Content = json.RawMessage(content)
	return &doc, nil
}
