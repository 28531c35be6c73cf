package client

import "encoding/json"

// Origin discriminates who produced a document update. Consumers apply
// Local updates immediately (they already have the content on screen) and
// reconcile Remote updates into their view; collapsing the two into one
// code path causes double-apply glitches.
type Origin int

const (
	// OriginLocal marks an update echoed back from this client's own Save
	// call, emitted before the frame even reaches the server.
	OriginLocal Origin = iota

	// OriginRemote marks an update produced by another participant, or a
	// refetch after a reconnect.
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "remote"
}

// Update is one document change delivered to the UpdateHandler.
type Update struct {
	Origin  Origin
	Room    string
	Kind    string
	Content json.RawMessage
}

// UpdateHandler receives every document update, local and remote, in
// arrival order. It runs on the client's dispatch goroutine; blocking in
// it stalls the connection.
type UpdateHandler func(Update)
