// Package server manages individual WebSocket sessions, handling read/write
// pumps, protocol dispatch, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Client is the live session binding one WebSocket connection to a declared
// username. The username is self-declared and unvalidated; it may be empty
// and is not guaranteed unique across sessions.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	sessionID      string
	username       string
	joinedAt       time.Time
	addr           string
	closed         bool
	maxMessageSize int64
}

// NewClient creates a session for the given connection. The session id is a
// fresh UUID, independent of the username. The send channel is buffered so a
// briefly slow peer does not stall broadcasts.
func NewClient(conn *websocket.Conn, hub *Hub, username, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		sessionID:      uuid.NewString(),
		username:       username,
		joinedAt:       time.Now().UTC(),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// SessionID returns the session's process-unique identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Username returns the username declared on connect.
func (c *Client) Username() string {
	return c.username
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Errorf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError classifies a read failure before the pump exits. Every branch
// leads to the same deregistration path; a transport error is treated exactly
// like a clean close.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warnf("Frame from %q (%s) exceeded maximum size of %d bytes", c.username, c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		logger.Infof("%q disconnected: %v", c.username, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		logger.Infof("Connection for %q closed: %v", c.username, err)
	default:
		logger.Warnf("WebSocket error for %q (%s): %v", c.username, c.addr, err)
	}
}

// processFrame parses one inbound frame and dispatches it. Malformed or
// unrecognized frames are logged and discarded; the connection stays open,
// and the pump remains ready for the next frame.
func (c *Client) processFrame(raw []byte) {
	frame, err := ParseFrame(raw)
	if err != nil {
		logger.Warnf("Discarding malformed frame from %q (%s): %v", c.username, c.addr, err)
		return
	}

	switch frame.Kind {
	case FramePostMessage:
		select {
		case c.hub.post <- postRequest{session: c, content: frame.Content}:
		case <-c.hub.ctx.Done():
		}
	case FrameGetHistory:
		select {
		case c.hub.getHistory <- c:
		case <-c.hub.ctx.Done():
		}
	default:
		logger.Warnf("Unknown message type %q from %q", frame.RawType, c.username)
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				logger.Errorf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}
		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				logger.Errorf("Error closing connection in writePump: %v", err)
			}
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writePayload(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writePayload sends one outbound payload as its own text frame. Payloads are
// individual JSON documents and must never be coalesced, so any queued
// payloads are flushed as separate frames. Returns false when the pump
// should stop.
func (c *Client) writePayload(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logger.Errorf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		// The hub closed the send channel.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				logger.Errorf("Error writing close message to %s: %v", c.addr, err)
			}
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logger.Errorf("Error writing payload to %s: %v", c.addr, err)
		return false
	}

	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
			logger.Errorf("Error writing queued payload to %s: %v", c.addr, err)
			return false
		}
	}
	return true
}

// writePing keeps the connection alive between outbound payloads.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logger.Errorf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			logger.Errorf("Error writing ping to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}
