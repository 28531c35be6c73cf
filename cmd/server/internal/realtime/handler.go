package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/workdeck/workdeck/cmd/server/internal/documents"
	"github.com/workdeck/workdeck/cmd/server/internal/users"
)

// AuthorizeFunc decides whether a user may join the room for a document
// and reports the document's kind. Return ErrUnknownDocument for ids that
// name nothing and ErrNotAuthorized when the user lacks access.
type AuthorizeFunc func(ctx context.Context, username, docID string) (documents.Kind, error)

// HandlerDeps carries everything the websocket endpoint needs.
type HandlerDeps struct {
	Hub       *Hub
	Users     *users.Manager
	Authorize AuthorizeFunc
	Logger    *slog.Logger

	SendQueueSize   int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// HandleRealtime upgrades the request to a websocket and runs the session
// until the peer disconnects. The access token travels in the `token`
// query parameter because browsers cannot set headers on websocket
// handshakes.
func HandleRealtime(deps HandlerDeps) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(deps.AllowedOrigins),
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error
			deps.Logger.Warn("websocket upgrade failed", "error", err, "remote", c.Request.RemoteAddr)
			return
		}

		claims, err := deps.Users.ParseAccessToken(c.Query("token"))
		if err != nil {
			code := CloseUnauthorized
			reason := "unauthorized"
			if errors.Is(err, users.ErrTokenExpired) {
				code = CloseCredentialExpired
				reason = "access token expired"
			}
			closeWithCode(conn, code, reason)
			return
		}

		s := NewSession(claims.Username, conn, deps.SendQueueSize)
		deps.Hub.Register(s)
		go s.WritePump()

		readLoop(c.Request.Context(), conn, s, claims, deps)
		deps.Hub.Unregister(s)
	}
}

// readLoop is the session's single reader goroutine: it parses inbound
// envelopes and dispatches them. Join authorization and cache warming run
// here so the event loop never waits on storage.
func readLoop(ctx context.Context, conn *websocket.Conn, s *Session, claims *users.Claims, deps HandlerDeps) {
	conn.SetReadLimit(deps.MaxMessageBytes)

	// rooms this connection has joined, with the kind resolved at join
	// time; only this goroutine touches it
	joined := map[string]documents.Kind{}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				deps.Logger.Debug("session read ended", "session_id", s.ID, "error", err)
			}
			return
		}

		switch env.Type {
		case TypeJoin:
			handleJoin(ctx, s, claims, env.Room, joined, deps)

		case TypeLeave:
			deps.Hub.Leave(s, env.Room)
			delete(joined, env.Room)

		case TypeSave:
			handleSave(s, claims, env, joined, deps)

		default:
			s.Deliver(Envelope{Type: TypeError, Room: env.Room, Error: "unknown message type"})
		}
	}
}

func handleJoin(ctx context.Context, s *Session, claims *users.Claims, docID string, joined map[string]documents.Kind, deps HandlerDeps) {
	if docID == "" {
		s.Deliver(Envelope{Type: TypeError, Error: "join requires a room"})
		return
	}
	if !users.HasScope(claims.Scopes, users.ScopeDocRead) {
		s.Deliver(Envelope{Type: TypeError, Room: docID, Error: ErrNotAuthorized.Error()})
		return
	}

	kind, err := deps.Authorize(ctx, claims.Username, docID)
	if err != nil {
		deps.Logger.Info("join rejected", "session_id", s.ID, "user", claims.Username, "doc_id", docID, "error", err)
		s.Deliver(Envelope{Type: TypeError, Room: docID, Error: err.Error()})
		return
	}

	// warm the cache before subscribing so the joined frame carries the
	// live content, unflushed edits included
	content, _, err := deps.Hub.Cache().Get(ctx, docID, kind)
	if err != nil {
		deps.Logger.Error("cache seed failed", "doc_id", docID, "error", err)
		s.Deliver(Envelope{Type: TypeError, Room: docID, Error: "document unavailable"})
		return
	}

	deps.Hub.Join(s, docID)
	joined[docID] = kind
	s.Deliver(Envelope{Type: TypeJoined, Room: docID, Kind: string(kind), Content: content})
}

func handleSave(s *Session, claims *users.Claims, env Envelope, joined map[string]documents.Kind, deps HandlerDeps) {
	kind, ok := joined[env.Room]
	if !ok {
		s.Deliver(Envelope{Type: TypeError, Room: env.Room, Error: ErrNotSubscribed.Error()})
		return
	}
	if !users.HasScope(claims.Scopes, users.ScopeDocWrite) {
		s.Deliver(Envelope{Type: TypeError, Room: env.Room, Error: ErrNotAuthorized.Error()})
		return
	}
	if err := documents.ValidateContent(kind, env.Content); err != nil {
		// a malformed edit never reaches the cache or the room
		s.Deliver(Envelope{Type: TypeError, Room: env.Room, Error: err.Error()})
		return
	}
	deps.Hub.Save(s, env.Room, kind, env.Content)
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := map[string]struct{}{}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser client
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
