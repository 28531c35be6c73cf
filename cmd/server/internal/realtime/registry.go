package realtime

import (
	"sync"

	"github.com/workdeck/workdeck/pkg/metrics"
)

// Registry maps a document id to the set of sessions currently subscribed
// to it. Join and leave are O(1); member enumeration is O(room size).
// Authorization is a precondition checked by the caller before Join.
type Registry struct {
	mu sync.Mutex
	// rooms: document id -> session id -> session
	rooms map[string]map[string]*Session
	// bySession: session id -> set of document ids, for LeaveAll
	bySession map[string]map[string]struct{}
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:     map[string]map[string]*Session{},
		bySession: map[string]map[string]struct{}{},
	}
}

// Join subscribes a session to a room. Joining a room the session already
// belongs to is a no-op so duplicate joins never duplicate fan-out.
func (r *Registry) Join(docID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[docID]
	if room == nil {
		room = map[string]*Session{}
		r.rooms[docID] = room
	}
	if _, ok := room[s.ID]; ok {
		return
	}
	room[s.ID] = s

	subs := r.bySession[s.ID]
	if subs == nil {
		subs = map[string]struct{}{}
		r.bySession[s.ID] = subs
	}
	subs[docID] = struct{}{}
	metrics.RoomJoined()
}

// Leave unsubscribes a session from a room. Safe to call when the session
// is not a member.
func (r *Registry) Leave(docID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(docID, s.ID)
}

func (r *Registry) leaveLocked(docID, sessionID string) {
	room := r.rooms[docID]
	if room == nil {
		return
	}
	if _, ok := room[sessionID]; !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, docID)
	}
	if subs := r.bySession[sessionID]; subs != nil {
		delete(subs, docID)
		if len(subs) == 0 {
			delete(r.bySession, sessionID)
		}
	}
	metrics.RoomLeft(1)
}

// LeaveAll removes every membership of a session; used on disconnect so no
// forwarding target outlives its connection.
func (r *Registry) LeaveAll(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.bySession[s.ID]
	for docID := range subs {
		r.leaveLocked(docID, s.ID)
	}
}

// Members returns the sessions currently subscribed to a room.
func (r *Registry) Members(docID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[docID]
	out := make([]*Session, 0, len(room))
	for _, s := range room {
		out = append(out, s)
	}
	return out
}

// Rooms returns the document ids a session is subscribed to.
func (r *Registry) Rooms(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.bySession[s.ID]))
	for docID := range r.bySession[s.ID] {
		out = append(out, docID)
	}
	return out
}
