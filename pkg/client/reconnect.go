package client

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// handleDisconnect runs after the read loop dies. It classifies the close,
// renews credentials when the server said the access token expired, and
// retries the connection a bounded number of times with a fixed delay.
// Rooms are rejoined after a successful reconnect; the rejoin acks carry
// the server's live content so no edit made while offline is lost on the
// reader side.
func (c *Client) handleDisconnect(readErr error) {
	c.setState(StateDisconnected)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	c.logger.Info("connection lost", "error", readErr)

	var closeErr *websocket.CloseError
	if errors.As(readErr, &closeErr) {
		switch closeErr.Code {
		case closeUnauthorized:
			c.shutdown(ErrUnauthorized)
			return
		case closeCredentialExpired:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.renewTokens(ctx)
			cancel()
			if err != nil {
				c.shutdown(err)
				return
			}
		}
	}

	var lastErr error = readErr
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.opts.RetryDelay):
		}

		c.logger.Info("reconnecting", "attempt", attempt, "max", c.opts.RetryAttempts)
		c.setState(StateConnecting)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			lastErr = err
			// an expired token between attempts still gets one renewal
			if renewErr := c.maybeRenew(err); renewErr != nil {
				c.shutdown(renewErr)
				return
			}
			c.setState(StateDisconnected)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.setStateLocked(StateConnected)
		rooms := make([]string, 0, len(c.rooms))
		for room := range c.rooms {
			rooms = append(rooms, room)
		}
		c.mu.Unlock()

		go c.readLoop(conn)
		for _, room := range rooms {
			if err := c.writeEnvelope(envelope{Type: "join", Room: room}); err != nil {
				c.logger.Warn("rejoin failed", "room", room, "error", err)
			}
		}
		c.logger.Info("reconnected", "rooms", len(rooms))
		return
	}

	c.shutdown(lastErr)
}

// maybeRenew renews the token pair when a handshake failed because the
// access token aged out between retries. Any other dial failure is left
// for the retry loop.
func (c *Client) maybeRenew(dialErr error) error {
	var closeErr *websocket.CloseError
	if !errors.As(dialErr, &closeErr) || closeErr.Code != closeCredentialExpired {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.renewTokens(ctx)
}
