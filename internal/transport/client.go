// ABOUTME: Websocket client connection with buffered outbound queue and read/write pumps
// ABOUTME: Implements realtime.Sink; delivery never blocks and drops when the queue is full

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/heartline-gateway/internal/realtime"
)

// Delivery errors
var (
	ErrSlowConsumer = errors.New("client send buffer full")
	ErrClosed       = errors.New("client closed")
)

// inboundFrame is a frame received from a client.
type inboundFrame struct {
	Type realtime.EventType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

// Client is one websocket connection.
type Client struct {
	id     string
	cfg    Config
	logger *slog.Logger
	send   chan []byte // buffered outbound frames

	conn *websocket.Conn

	mu        sync.Mutex
	closed    bool
	closeCode int
}

func newClient(id string, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		id:        id,
		cfg:       cfg,
		logger:    logger.With("connection_id", id),
		send:      make(chan []byte, cfg.SendBuffer),
		closeCode: websocket.CloseNormalClosure,
	}
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.id
}

// Deliver queues ev for writing. It never blocks.
func (c *Client) Deliver(ev realtime.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops accepting events. Frames already queued are still written,
// followed by a close frame. Safe to call more than once.
func (c *Client) Close() {
	c.closeWith(websocket.CloseNormalClosure)
}

func (c *Client) closeWith(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.send)
}

// readPump reads frames until the connection fails, handing each text frame
// to handle. The session (if any) is closed when it returns.
func (c *Client) readPump(ctx context.Context, session *realtime.Session) {
	defer func() {
		if session != nil {
			session.Close(context.WithoutCancel(ctx))
		}
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if session != nil {
				c.handleFrame(ctx, session, bytes.TrimSpace(message))
			}
		case websocket.BinaryMessage:
			c.logger.Debug("ignoring binary frame")
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, session *realtime.Session, message []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Debug("ignoring malformed frame", "error", err)
		return
	}

	switch frame.Type {
	case realtime.EventSendMessage:
		var req realtime.SendMessageRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			c.logger.Debug("ignoring malformed send", "error", err)
			return
		}
		_, err := session.Send(ctx, realtime.SendRequest{
			RecipientID:     req.RecipientID,
			Content:         req.Content,
			ClientMessageID: req.ClientMessageID,
		})
		if err != nil {
			if derr := c.Deliver(realtime.SendRejected(req.ClientMessageID, err)); derr != nil {
				c.logger.Debug("could not report rejected send", "error", derr)
			}
		}
	default:
		c.logger.Debug("ignoring unknown frame", "type", frame.Type)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.mu.Lock()
				code := c.closeCode
				c.mu.Unlock()
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

var _ realtime.Sink = (*Client)(nil)
