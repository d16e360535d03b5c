package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Outbound messages buffered per connection.
	sendBufferSize = 256
)

// ClientConfig holds keep-alive timing for a connection.
type ClientConfig struct {
	// PongWait is the time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// PingInterval must be less than PongWait.
	PingInterval time.Duration
}

// DefaultClientConfig returns the keep-alive timing used when none is configured.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PongWait:     60 * time.Second,
		PingInterval: 54 * time.Second,
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan Message

	// ID identifies this connection in logs.
	ID string

	// User ID for this client.
	UserID string

	cfg ClientConfig

	// mu guards closed so no message is queued on a closed Send channel
	mu     sync.Mutex
	closed bool

	logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID string, cfg ClientConfig, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan Message, sendBufferSize),
		ID:     id,
		UserID: userID,
		cfg:    cfg,
		logger: logger.With("user_id", userID, "conn_id", id),
	}
}

type offerResult int

const (
	offerQueued offerResult = iota
	offerFull
	offerClosed
)

// offer queues msg without blocking.
func (c *Client) offer(msg Message) offerResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return offerClosed
	}
	select {
	case c.Send <- msg:
		return offerQueued
	default:
		return offerFull
	}
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.detach(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.Conn.WriteJSON(msg); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// ClientMessage is the structure for messages sent from the client.
// The connection is push-only; only keep-alives are understood.
type ClientMessage struct {
	Type string `json:"type"`
}

func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "PING":
		c.offer(Message{Type: MessagePong})
	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}
