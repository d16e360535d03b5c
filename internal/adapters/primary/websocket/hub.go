package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// Message types pushed to clients.
const (
	MessageNotification = "NOTIFICATION"
	MessageRevoke       = "REVOKE"
	MessagePong         = "PONG"
)

// Message is the envelope written to the websocket.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub maintains the set of active Clients and pushes notifications to them.
type Hub struct {
	// clients maps user IDs to their active connections
	// A single user can have multiple connections (multiple tabs/devices)
	clients map[string]map[*Client]struct{}

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed once Run has returned
	done chan struct{}

	// closed mirrors done for callers holding mu
	closed bool

	// mu protects clients and closed
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the NotificationChannel interface.
var _ ports.NotificationChannel = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Run processes registrations until ctx is cancelled, then disconnects every
// client. This MUST be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Attach hands a new client to the hub. It reports false once the hub has
// stopped, in which case the client's Send channel is already closed.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		client.CloseSend()
		return false
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Send pushes the update to every connection of its owner. It fails with
// ErrRecipientNotConnected when the owner has no connection that accepted
// the message.
func (h *Hub) Send(ctx context.Context, update domain.NotificationUpdate) error {
	clients, err := h.clientsOf(update.OwnerID)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrRecipientNotConnected, update.OwnerID)
	}

	msg := Message{Type: MessageNotification, Payload: update}
	delivered := 0
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if h.enqueue(client, msg) {
			delivered++
		}
	}

	if delivered == 0 {
		return fmt.Errorf("%w: %s: all send buffers full", apperrors.ErrRecipientNotConnected, update.OwnerID)
	}
	return nil
}

// Revoke tells every connected client to withdraw notifications for
// entityID. Clients that do not hold any simply ignore it.
func (h *Hub) Revoke(ctx context.Context, entityID string) error {
	clients, err := h.allClients()
	if err != nil {
		return err
	}

	msg := Message{Type: MessageRevoke, Payload: domain.RevokeDirective{EntityID: entityID}}
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.enqueue(client, msg)
	}

	h.logger.DebugContext(ctx, "revoke broadcast",
		"entity_id", entityID,
		"client_count", len(clients),
	)
	return nil
}

// enqueue queues msg without blocking. A client whose buffer is full is
// too slow to keep and is disconnected.
func (h *Hub) enqueue(client *Client, msg Message) bool {
	switch client.offer(msg) {
	case offerQueued:
		return true
	case offerFull:
		h.logger.Warn("client send buffer full, unregistering",
			"user_id", client.UserID,
			"conn_id", client.ID,
		)
		h.unregisterClient(client)
	}
	return false
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		client.CloseSend()
		return
	}

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"conn_id", client.ID,
		"total_connections", len(h.clients[client.UserID]),
	)
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, exists := userClients[client]; !exists {
		return
	}
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.clients, client.UserID)
	}

	client.CloseSend()

	h.logger.Info("client unregistered",
		"user_id", client.UserID,
		"conn_id", client.ID,
	)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	close(h.done)
	for userID, userClients := range h.clients {
		for client := range userClients {
			client.CloseSend()
		}
		delete(h.clients, userID)
	}
	h.logger.Info("websocket hub stopped")
}

// clientsOf copies the user's connections so sends happen without the lock.
func (h *Hub) clientsOf(userID string) ([]*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, apperrors.ErrChannelClosed
	}
	clients := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		clients = append(clients, client)
	}
	return clients, nil
}

func (h *Hub) allClients() ([]*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, apperrors.ErrChannelClosed
	}
	var clients []*Client
	for _, userClients := range h.clients {
		for client := range userClients {
			clients = append(clients, client)
		}
	}
	return clients, nil
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, userClients := range h.clients {
		count += len(userClients)
	}
	return count
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID]) > 0
}
