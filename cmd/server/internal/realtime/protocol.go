// Package realtime implements the collaborative synchronization engine:
// one websocket session per client, rooms keyed by document id, broadcast
// fan-out of whole-document edits, and debounced persistence.
package realtime

import "encoding/json"

// Envelope is the wire frame for every realtime message. A single
// connection multiplexes many rooms; Room carries the document id and Kind
// the document flavor.
type Envelope struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Message types.
const (
	// client -> server
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypeSave  = "save"

	// server -> client
	TypeJoined     = "joined"
	TypeUpdate     = "update"
	TypeError      = "error"
	TypeSaveFailed = "saveFailed"
)

// Close codes sent on a failed handshake. CloseCredentialExpired tells the
// client to renew its access token and reconnect; CloseUnauthorized is
// terminal for the presented credentials.
const (
	CloseCredentialExpired = 4001
	CloseUnauthorized      = 4003
)
