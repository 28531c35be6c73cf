package documents

import (
	"encoding/json"
	"time"
)

// Kind identifies the document flavor behind a collaboration room.
type Kind string

const (
	KindCanvas Kind = "canvas"
	KindNote   Kind = "note"
	KindBoard  Kind = "board"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCanvas, KindNote, KindBoard:
		return true
	}
	return false
}

// Document is the canonical shared content for one canvas, note or board
// instance. Content is the kind-specific payload; edits replace it wholesale
// (last write wins, no operational deltas).
type Document struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	ProjectID string          `json:"project_id"`
	Content   json.RawMessage `json:"content"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Node is one element on a canvas or board surface.
type Node struct {
	ID       string          `json:"id"`
	Type     string          `json:"type,omitempty"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Position is a node's coordinates on the surface.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects two nodes on a canvas.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// CanvasContent is the payload shape for canvas documents.
type CanvasContent struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BoardItem is one card on a sprint board.
type BoardItem struct {
	ID       string          `json:"id"`
	Column   string          `json:"column"`
	Title    string          `json:"title"`
	Assignee string          `json:"assignee,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// BoardContent is the payload shape for board documents.
type BoardContent struct {
	Items []BoardItem `json:"items"`
}

// Note content is an opaque rich-text payload owned by the editor frontend;
// the server only checks it is a JSON object.

// DefaultContent returns the empty payload seeded for a document that has no
// durable record yet.
func DefaultContent(kind Kind) json.RawMessage {
	switch kind {
	case KindCanvas:
		return json.RawMessage(`{"nodes":[],"edges":[]}`)
	case KindBoard:
		return json.RawMessage(`{"items":[]}`)
	default:
		return json.RawMessage(`{}`)
	}
}
