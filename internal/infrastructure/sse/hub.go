package sse

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
)

var _ notification.SSEHub = (*Hub)(nil)

// Hub tracks open SSE connections on this instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.SSEClient
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*notification.SSEClient),
		logger:  logger.With().Str("component", "sse_hub").Logger(),
	}
}

func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) BroadcastToAll(message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.send(c, message)
	}
}

func (h *Hub) BroadcastToUser(userID string, message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.UserID != nil && *c.UserID == userID {
			h.send(c, message)
		}
	}
}

func (h *Hub) BroadcastToGroup(group string, message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		for _, g := range c.Groups {
			if g == group {
				h.send(c, message)
				break
			}
		}
	}
}

// Stop closes every open stream.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

// send never blocks; a slow client drops frames and resyncs from the API.
func (h *Hub) send(c *notification.SSEClient, msg *notification.SSEMessage) {
	select {
	case c.MessageChan <- msg:
	default:
		h.logger.Warn().Str("client_id", c.ClientID).Str("message_id", msg.ID).Msg("sse client buffer full, dropping frame")
	}
}
