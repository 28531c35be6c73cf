package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// stubServer fakes the login, refresh and realtime endpoints with just
// enough behavior to exercise the client's session logic.
type stubServer struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	validTokens map[string]bool
	refreshOK   bool
	accessSeq   int
	closeCode   int // when non-zero, close every handshake with this code
	conns       []*websocket.Conn

	saves chan envelope
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{
		t:           t,
		validTokens: map[string]bool{"access-0": true},
		refreshOK:   true,
		saves:       make(chan envelope, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"access_token": "access-0", "refresh_token": "refresh-0"})
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"error": "refresh token expired"})
			return
		}
		s.accessSeq++
		token := fmt.Sprintf("access-%d", s.accessSeq)
		s.validTokens[token] = true
		writeJSON(w, map[string]string{"access_token": token, "refresh_token": "refresh-0"})
	})
	mux.HandleFunc("/api/v1/realtime", s.handleRealtime)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *stubServer) handleRealtime(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	rejectCode := s.closeCode
	tokenOK := s.validTokens[r.URL.Query().Get("token")]
	s.mu.Unlock()

	if rejectCode == 0 && !tokenOK {
		rejectCode = closeCredentialExpired
	}
	if rejectCode != 0 {
		msg := websocket.FormatCloseMessage(rejectCode, "go away")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Type {
		case "join":
			_ = conn.WriteJSON(envelope{Type: "joined", Room: env.Room, Kind: "note", Content: json.RawMessage(`{"text":"hello"}`)})
		case "save":
			s.saves <- env
		}
	}
}

// push sends a frame to the most recent live connection.
func (s *stubServer) push(env envelope) {
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	require.NoError(s.t, conn.WriteJSON(env))
}

// dropConnections kills every live websocket without a close frame.
func (s *stubServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) handle(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func newTestClient(t *testing.T, s *stubServer, rec *recorder, onClosed func(error)) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:       s.srv.URL,
		Username:      "alice",
		Password:      "secret123",
		OnUpdate:      rec.handle,
		OnClosed:      onClosed,
		RetryAttempts: 3,
		RetryDelay:    20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectAndJoin(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}
	c := newTestClient(t, s, rec, nil)

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, StateConnected, c.State())

	content, err := c.Join(context.Background(), "doc-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"hello"}`, string(content))
}

func TestSaveEmitsLocalUpdateFirst(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}
	c := newTestClient(t, s, rec, nil)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Join(context.Background(), "doc-1")
	require.NoError(t, err)

	edit := json.RawMessage(`{"text":"mine"}`)
	require.NoError(t, c.Save("doc-1", edit))

	// the local echo is synchronous, before the frame hits the wire
	got := rec.all()
	require.Len(t, got, 1)
	require.Equal(t, OriginLocal, got[0].Origin)
	require.Equal(t, "doc-1", got[0].Room)
	require.JSONEq(t, string(edit), string(got[0].Content))

	select {
	case env := <-s.saves:
		require.JSONEq(t, string(edit), string(env.Content))
	case <-time.After(time.Second):
		t.Fatal("server never received the save frame")
	}
}

func TestSaveRequiresJoin(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}
	c := newTestClient(t, s, rec, nil)

	require.NoError(t, c.Connect(context.Background()))
	require.Error(t, c.Save("doc-1", json.RawMessage(`{}`)))
	require.Empty(t, rec.all())
}

func TestRemoteUpdatesAreTagged(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}
	c := newTestClient(t, s, rec, nil)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Join(context.Background(), "doc-1")
	require.NoError(t, err)

	s.push(envelope{Type: "update", Room: "doc-1", Kind: "note", Content: json.RawMessage(`{"text":"theirs"}`)})

	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)
	got := rec.all()[0]
	require.Equal(t, OriginRemote, got.Origin)
	require.JSONEq(t, `{"text":"theirs"}`, string(got.Content))
}

func TestReconnectRejoinsRooms(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}
	c := newTestClient(t, s, rec, nil)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Join(context.Background(), "doc-1")
	require.NoError(t, err)

	s.dropConnections()

	require.Eventually(t, func() bool {
		return c.State() == StateConnected && len(rec.all()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// the rejoin ack surfaces the server's live content as a remote update
	got := rec.all()[0]
	require.Equal(t, OriginRemote, got.Origin)
	require.Equal(t, "doc-1", got.Room)
	require.JSONEq(t, `{"text":"hello"}`, string(got.Content))

	// the restored session is fully usable
	require.NoError(t, c.Save("doc-1", json.RawMessage(`{"text":"after"}`)))
	select {
	case <-s.saves:
	case <-time.After(time.Second):
		t.Fatal("save after reconnect never arrived")
	}
}

func TestExpiredCredentialIsRenewed(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}
	c := newTestClient(t, s, rec, nil)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Join(context.Background(), "doc-1")
	require.NoError(t, err)

	// the server now considers the original token expired
	s.mu.Lock()
	delete(s.validTokens, "access-0")
	s.mu.Unlock()
	s.dropConnections()

	// first reconnect attempt is closed with 4001, the client renews and
	// the second attempt succeeds with the fresh token
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	c.mu.Lock()
	token := c.access
	c.mu.Unlock()
	require.NotEqual(t, "access-0", token)
}

func TestRejectedRefreshIsTerminal(t *testing.T) {
	s := newStubServer(t)
	rec := &recorder{}

	closedCh := make(chan error, 1)
	c := newTestClient(t, s, rec, func(err error) { closedCh <- err })

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Join(context.Background(), "doc-1")
	require.NoError(t, err)

	s.mu.Lock()
	delete(s.validTokens, "access-0")
	s.refreshOK = false
	s.mu.Unlock()
	s.dropConnections()

	select {
	case err := <-closedCh:
		require.ErrorIs(t, err, ErrSessionExpired)
	case <-time.After(5 * time.Second):
		t.Fatal("client never terminated")
	}
	require.Equal(t, StateClosed, c.State())
}

func TestUnauthorizedCloseIsTerminal(t *testing.T) {
	s := newStubServer(t)
	s.mu.Lock()
	s.closeCode = closeUnauthorized
	s.mu.Unlock()

	rec := &recorder{}
	closedCh := make(chan error, 1)
	c := newTestClient(t, s, rec, func(err error) { closedCh <- err })

	// the handshake upgrades, then the server closes with the terminal code
	require.NoError(t, c.Connect(context.Background()))

	select {
	case err := <-closedCh:
		require.ErrorIs(t, err, ErrUnauthorized)
	case <-time.After(3 * time.Second):
		t.Fatal("client never terminated")
	}
}
