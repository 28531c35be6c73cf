package realtime

import "errors"

var (
	// ErrUnknownDocument means the room id does not name any document.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrNotAuthorized means the user may not view the document behind
	// the room. Terminal for the join request; the registry is untouched.
	ErrNotAuthorized = errors.New("not authorized to join room")

	// ErrNotSubscribed means a save was sent for a room the session never
	// joined.
	ErrNotSubscribed = errors.New("not subscribed to room")
)
