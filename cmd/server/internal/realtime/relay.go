package realtime

import (
	"encoding/json"

	"github.com/workdeck/workdeck/pkg/metrics"
)

// Relay fans an edit out to every room member except the sender. It never
// echoes back to the session that published the edit and it never persists
// anything; durability is the scheduler's job.
type Relay struct {
	registry *Registry
}

// NewRelay creates a relay over the given registry.
func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Publish delivers newContent to every member of the room except sender,
// tagged as a remote update. Returns the number of queued deliveries.
func (r *Relay) Publish(docID, kind string, sender *Session, newContent json.RawMessage) int {
	env := Envelope{Type: TypeUpdate, Room: docID, Kind: kind, Content: newContent}
	delivered := 0
	for _, m := range r.registry.Members(docID) {
		if sender != nil && m.ID == sender.ID {
			continue
		}
		if m.Deliver(env) {
			delivered++
		}
	}
	metrics.RecordBroadcast(kind)
	return delivered
}

// Broadcast delivers an envelope to every member of the room, including
// the original editor; used for save-failure warnings.
func (r *Relay) Broadcast(docID string, env Envelope) {
	for _, m := range r.registry.Members(docID) {
		m.Deliver(env)
	}
}
