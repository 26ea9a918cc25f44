package ordering

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/websocket"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, api *testAPI, id string) *gorilla.Conn {
	t.Helper()
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + basePath + "/" + id + "/ws"
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *gorilla.Conn, match func(websocket.Message) bool) websocket.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestStream_SendsInitialStateOfEveryStream(t *testing.T) {
	api := newTestAPI(t, testDependencies(titledGeoCoder("x"), nil, nil))
	id := api.createSession()
	conn := dialStream(t, api, id)

	want := map[string]bool{
		MessageSourceAddress:      true,
		MessageDestinationAddress: true,
		MessageRoute:              true,
		MessageInfoWindow:         true,
		MessageNearbyPlaces:       true,
		MessageMyLocation:         true,
	}
	readUntil(t, conn, func(msg websocket.Message) bool {
		assert.Equal(t, id, msg.SessionID)
		delete(want, msg.Type)
		return len(want) == 0
	})
}

func TestStream_PushesAddressUpdates(t *testing.T) {
	api := newTestAPI(t, testDependencies(titledGeoCoder("Tverskaya 1"), nil, nil))
	id := api.createSession()
	conn := dialStream(t, api, id)

	session, err := api.service.Get(id)
	require.NoError(t, err)
	_, err = session.Core.SubmitLocationGeocode(55.7558, 37.6173, taxi.SourceUserSpecified, taxi.AddressTypeSource)
	require.NoError(t, err)

	msg := readUntil(t, conn, func(msg websocket.Message) bool {
		return msg.Type == MessageSourceAddress && string(msg.Data) != "null"
	})

	var address taxi.Address
	require.NoError(t, json.Unmarshal(msg.Data, &address))
	assert.Equal(t, "Tverskaya 1", address.Title)
	assert.Equal(t, taxi.SourceUserSpecified, address.Source)
}

func TestStream_LocationCommand(t *testing.T) {
	api := newTestAPI(t, testDependencies(titledGeoCoder("x"), nil, nil))
	id := api.createSession()
	conn := dialStream(t, api, id)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": CommandLocation,
		"data": map[string]float64{"latitude": 55.75, "longitude": 37.61},
	}))

	msg := readUntil(t, conn, func(msg websocket.Message) bool {
		return msg.Type == MessageMyLocation && string(msg.Data) != "null"
	})

	var pos taxi.Position
	require.NoError(t, json.Unmarshal(msg.Data, &pos))
	assert.Equal(t, taxi.Position{Latitude: 55.75, Longitude: 37.61}, pos)
}

func TestStream_InvalidCommandGetsError(t *testing.T) {
	api := newTestAPI(t, testDependencies(titledGeoCoder("x"), nil, nil))
	id := api.createSession()
	conn := dialStream(t, api, id)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": CommandMapVisibility,
		"data": map[string]interface{}{},
	}))

	msg := readUntil(t, conn, func(msg websocket.Message) bool { return msg.Type == MessageError })
	assert.Contains(t, string(msg.Data), CommandMapVisibility)

	session, err := api.service.Get(id)
	require.NoError(t, err)
	assert.True(t, session.Core.IsMapVisible())
}

func TestStream_ClosedWithSession(t *testing.T) {
	api := newTestAPI(t, testDependencies(titledGeoCoder("x"), nil, nil))
	id := api.createSession()
	conn := dialStream(t, api, id)

	w, _ := api.do(http.MethodDelete, basePath+"/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, gorilla.IsCloseError(err, gorilla.CloseNormalClosure), "unexpected error: %v", err)
			return
		}
	}
}
