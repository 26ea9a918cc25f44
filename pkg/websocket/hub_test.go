package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// startServer serves /ws/:id through Serve and forwards every accepted client.
func startServer(t *testing.T, hub *Hub) (string, <-chan *Client) {
	t.Helper()
	accepted := make(chan *Client, 4)

	router := gin.New()
	router.GET("/ws/:id", func(c *gin.Context) {
		client, err := Serve(c, hub, c.Param("id"))
		if assert.NoError(t, err) {
			accepted <- client
		}
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/", accepted
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSendToSessionReachesOnlyThatSession(t *testing.T) {
	hub := NewHub(zap.NewNop())
	base, accepted := startServer(t, hub)

	a := dial(t, base+"s1")
	<-accepted
	b := dial(t, base+"s2")
	<-accepted

	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, 2, hub.SessionCount())

	msg, err := NewMessage("route", "s1", map[string]int{"distance": 1200})
	require.NoError(t, err)
	hub.SendToSession("s1", msg)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	var got Message
	require.NoError(t, a.ReadJSON(&got))
	assert.Equal(t, "route", got.Type)
	assert.JSONEq(t, `{"distance":1200}`, string(got.Data))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	assert.Error(t, b.ReadJSON(&got))
}

func TestIncomingMessagesReachHandlers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	received := make(chan *Message, 1)
	hub.RegisterHandler("map_visibility", func(c *Client, m *Message) {
		received <- m
	})
	base, accepted := startServer(t, hub)

	conn := dial(t, base+"s1")
	<-accepted

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "map_visibility",
		"data": map[string]bool{"visible": true},
	}))

	select {
	case m := <-received:
		assert.Equal(t, "s1", m.SessionID)
		var body struct{ Visible bool }
		require.NoError(t, json.Unmarshal(m.Data, &body))
		assert.True(t, body.Visible)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestCloseSessionDisconnectsClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	base, accepted := startServer(t, hub)

	conn := dial(t, base+"s1")
	client := <-accepted

	hub.CloseSession("s1")

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSendMessageDropsSlowClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := NewClient("c1", "s1", nil, hub, zap.NewNop())
	client.Send = make(chan *Message, 1)
	hub.Register(client)

	assert.True(t, client.SendMessage(&Message{Type: "a"}))
	assert.False(t, client.SendMessage(&Message{Type: "b"}))

	select {
	case <-client.Done():
	default:
		t.Fatal("slow client should be dropped")
	}
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, client.SendMessage(&Message{Type: "c"}))
}
