package websocket

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Clients are mobile apps, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request, registers a client for sessionID and starts
// its pumps. The returned client's Done channel closes on disconnect.
func Serve(c *gin.Context, hub *Hub, sessionID string) (*Client, error) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	client := NewClient(uuid.NewString(), sessionID, conn, hub, hub.logger)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
	return client, nil
}
