// Package client is the Go client for the workdeck realtime API. It
// maintains one websocket session, multiplexes document rooms over it,
// tags every update with its origin so callers can tell their own edits
// from everyone else's, and transparently reconnects with credential
// renewal when the server closes an expired session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes the server uses on a failed websocket handshake.
const (
	closeCredentialExpired = 4001
	closeUnauthorized      = 4003
)

var (
	// ErrSessionExpired means the refresh token was rejected; the caller
	// must log in again. Terminal for the client.
	ErrSessionExpired = errors.New("session expired, login required")

	// ErrUnauthorized means the server refused the credentials outright.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client is closed")

	// ErrNotConnected is returned when an operation needs a live
	// connection and there is none.
	ErrNotConnected = errors.New("not connected")
)

// envelope mirrors the server's wire frame.
type envelope struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server's HTTP base, e.g. "http://localhost:8080".
	BaseURL string

	Username string
	Password string

	// OnUpdate receives every document update, local and remote.
	OnUpdate UpdateHandler

	// OnSaveFailed is called when the server reports that a room's edits
	// could not be persisted. May be nil.
	OnSaveFailed func(room, message string)

	// OnClosed is called once when the client shuts down for good, with
	// the terminal error (nil after a clean Close).
	OnClosed func(error)

	// RetryAttempts bounds the reconnect loop; RetryDelay is the fixed
	// pause between attempts.
	RetryAttempts int
	RetryDelay    time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a realtime session over one websocket connection.
type Client struct {
	opts   Options
	httpc  *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	access  string
	refresh string
	// rooms this client has joined, kept for rejoin after a reconnect
	rooms   map[string]string
	pending map[string]chan joinResult
	termErr error

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

type joinResult struct {
	kind    string
	content json.RawMessage
	err     error
}

// New creates a Client. Call Connect to establish the session.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("client: BaseURL is required")
	}
	if opts.OnUpdate == nil {
		return nil, errors.New("client: OnUpdate is required")
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		httpc:   httpc,
		logger:  logger,
		state:   StateDisconnected,
		rooms:   map[string]string{},
		pending: map[string]chan joinResult{},
		done:    make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal error after the client has closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termErr
}

func (c *Client) setState(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(next)
}

func (c *Client) setStateLocked(next State) {
	if err := c.state.validateTransitionTo(next); err != nil {
		c.logger.Warn("state transition refused", "error", err)
		return
	}
	c.state = next
}

// Connect logs in with the configured credentials and establishes the
// websocket session. The read loop runs until Close or a terminal error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.login(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close shuts the client down. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.termErr = err
		c.setStateLocked(StateClosed)
		conn := c.conn
		c.conn = nil
		pending := c.pending
		c.pending = map[string]chan joinResult{}
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			_ = conn.Close()
		}
		for _, ch := range pending {
			ch <- joinResult{err: ErrClosed}
		}
		if c.opts.OnClosed != nil {
			c.opts.OnClosed(err)
		}
	})
}

// Join subscribes to a document room and returns the room's live content.
func (c *Client) Join(ctx context.Context, room string) (json.RawMessage, error) {
	ch := make(chan joinResult, 1)
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := c.pending[room]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("join already pending for room %s", room)
	}
	c.pending[room] = ch
	c.mu.Unlock()

	if err := c.writeEnvelope(envelope{Type: "join", Room: room}); err != nil {
		c.mu.Lock()
		delete(c.pending, room)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.content, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, room)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Leave unsubscribes from a room.
func (c *Client) Leave(room string) error {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	return c.writeEnvelope(envelope{Type: "leave", Room: room})
}

// Save publishes a whole-document replacement. The update is handed to
// OnUpdate tagged OriginLocal before it goes on the wire, so the caller's
// view never waits on the network for its own edit.
func (c *Client) Save(room string, content json.RawMessage) error {
	c.mu.Lock()
	kind, joined := c.rooms[room]
	c.mu.Unlock()
	if !joined {
		return fmt.Errorf("not joined to room %s", room)
	}

	c.opts.OnUpdate(Update{Origin: OriginLocal, Room: room, Kind: kind, Content: content})
	return c.writeEnvelope(envelope{Type: "save", Room: room, Content: content})
}

func (c *Client) writeEnvelope(env envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// readLoop dispatches inbound frames until the connection dies, then
// hands off to the reconnect manager.
func (c *Client) readLoop(conn *websocket.Conn) {
	var readErr error
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			readErr = err
			break
		}
		c.dispatch(env)
	}

	select {
	case <-c.done:
		return
	default:
	}
	c.handleDisconnect(readErr)
}

func (c *Client) dispatch(env envelope) {
	switch env.Type {
	case "joined":
		c.mu.Lock()
		c.rooms[env.Room] = env.Kind
		ch := c.pending[env.Room]
		delete(c.pending, env.Room)
		c.mu.Unlock()
		if ch != nil {
			ch <- joinResult{kind: env.Kind, content: env.Content}
			return
		}
		// a rejoin ack after a reconnect: surface the server's live
		// content so the caller can reconcile anything missed offline
		c.opts.OnUpdate(Update{Origin: OriginRemote, Room: env.Room, Kind: env.Kind, Content: env.Content})

	case "update":
		c.opts.OnUpdate(Update{Origin: OriginRemote, Room: env.Room, Kind: env.Kind, Content: env.Content})

	case "saveFailed":
		if c.opts.OnSaveFailed != nil {
			c.opts.OnSaveFailed(env.Room, env.Error)
		}

	case "error":
		c.mu.Lock()
		ch := c.pending[env.Room]
		delete(c.pending, env.Room)
		c.mu.Unlock()
		if ch != nil {
			ch <- joinResult{err: errors.New(env.Error)}
			return
		}
		c.logger.Warn("server error", "room", env.Room, "error", env.Error)

	default:
		c.logger.Debug("ignoring unknown frame", "type", env.Type)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	token := c.access
	c.mu.Unlock()

	wsURL := strings.Replace(c.opts.BaseURL, "http", "ws", 1) + "/api/v1/realtime?token=" + token
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return conn, nil
}

func (c *Client) login(ctx context.Context) error {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := c.postJSON(ctx, "/api/v1/auth/login", map[string]string{
		"username": c.opts.Username,
		"password": c.opts.Password,
	}, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	c.mu.Lock()
	c.access, c.refresh = resp.AccessToken, resp.RefreshToken
	c.mu.Unlock()
	return nil
}

// renewTokens exchanges the refresh token for a fresh pair. A rejected
// refresh token means the whole session is over.
func (c *Client) renewTokens(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := c.postJSON(ctx, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, &resp)
	if err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusUnauthorized {
			return ErrSessionExpired
		}
		return fmt.Errorf("renew tokens: %w", err)
	}

	c.mu.Lock()
	c.access, c.refresh = resp.AccessToken, resp.RefreshToken
	c.mu.Unlock()
	c.logger.Info("credentials renewed")
	return nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.status, e.body)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return json.Unmarshal(data, out)
}
