package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Client messages are small commands
	maxMessageSize = 16 * 1024

	sendBuffer = 64
)

// Message is the frame exchanged with clients in both directions.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals payload into a message of the given type.
func NewMessage(msgType, sessionID string, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Message{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Client is one WebSocket connection bound to a session.
type Client struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan *Message
	Hub       *Hub

	logger    *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client. Conn may be nil in tests that never pump.
func NewClient(id, sessionID string, conn *websocket.Conn, hub *Hub, logger *zap.Logger) *Client {
	return &Client{
		ID:        id,
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan *Message, sendBuffer),
		Hub:       hub,
		logger:    logger.With(zap.String("client_id", id), zap.String("session_id", sessionID)),
		done:      make(chan struct{}),
	}
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump routes incoming frames to the hub until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		msg.Timestamp = time.Now().UTC()
		msg.SessionID = c.SessionID
		c.Hub.HandleMessage(c, &msg)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage queues msg. A client that cannot keep up is dropped and
// reports false.
func (c *Client) SendMessage(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- msg:
		return true
	default:
		c.logger.Warn("websocket send buffer full, dropping client")
		c.Hub.unregister(c)
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
