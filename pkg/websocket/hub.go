package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// MessageHandler handles one incoming message type.
type MessageHandler func(*Client, *Message)

// Hub tracks connected clients grouped by session.
type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	sessions map[string]map[string]*Client
	handlers map[string]MessageHandler
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:   logger,
		clients:  make(map[string]*Client),
		sessions: make(map[string]map[string]*Client),
		handlers: make(map[string]MessageHandler),
	}
}

// Register adds a client to its session room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	room, ok := h.sessions[client.SessionID]
	if !ok {
		room = make(map[string]*Client)
		h.sessions[client.SessionID] = room
	}
	room[client.ID] = client

	h.logger.Debug("websocket client registered",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID),
	)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		if room, ok := h.sessions[client.SessionID]; ok {
			delete(room, client.ID)
			if len(room) == 0 {
				delete(h.sessions, client.SessionID)
			}
		}
	}
	h.mu.Unlock()

	client.close()
}

// SendToSession delivers msg to every client watching the session.
func (h *Hub) SendToSession(sessionID string, msg *Message) {
	for _, client := range h.ClientsInSession(sessionID) {
		client.SendMessage(msg)
	}
}

// CloseSession disconnects every client of the session.
func (h *Hub) CloseSession(sessionID string) {
	for _, client := range h.ClientsInSession(sessionID) {
		h.unregister(client)
	}
}

// HandleMessage routes an incoming message to its registered handler.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	handler, ok := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug("no handler for websocket message", zap.String("type", msg.Type))
		return
	}
	handler(client, msg)
}

// RegisterHandler registers a message handler for a specific type.
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// ClientsInSession returns the clients of one session.
func (h *Hub) ClientsInSession(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.sessions[sessionID]
	clients := make([]*Client, 0, len(room))
	for _, client := range room {
		clients = append(clients, client)
	}
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionCount returns the number of sessions with at least one client.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
