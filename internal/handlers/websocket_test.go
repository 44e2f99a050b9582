package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/services/events"
)

func newTestSocket(t *testing.T, config *common.WebSocketConfig) (*WebSocketHandler, interfaces.EventService, *websocket.Conn) {
	t.Helper()

	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(bus, arbor.NewLogger(), config)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// First message is the hello with the server instance id
	var hello WSMessage
	require.NoError(t, readMessage(conn, &hello))
	require.Equal(t, "hello", hello.Type)

	return h, bus, conn
}

func readMessage(conn *websocket.Conn, out *WSMessage) error {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func TestWebSocketBroadcastsImportStatus(t *testing.T) {
	_, bus, conn := newTestSocket(t, nil)

	err := bus.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventImportStatus,
		Payload: map[string]interface{}{
			"job_id":  "job_ws1",
			"status":  "running",
			"phase":   "crawling",
			"message": "Crawling site",
		},
	})
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, readMessage(conn, &msg))
	assert.Equal(t, "import_status", msg.Type)

	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "job_ws1", payload["job_id"])
	assert.Equal(t, "crawling", payload["phase"])
}

func TestWebSocketThrottlesProgress(t *testing.T) {
	config := &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{"import_progress": "1h"},
	}
	_, bus, conn := newTestSocket(t, config)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
			Type: interfaces.EventImportProgress,
			Payload: map[string]interface{}{
				"job_id":  "job_ws2",
				"phase":   "crawling",
				"crawled": i + 1,
			},
		}))
	}

	// Only the first event inside the throttle window reaches clients
	var msg WSMessage
	require.NoError(t, readMessage(conn, &msg))
	assert.Equal(t, "import_progress", msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, float64(1), payload["crawled"])

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketWhitelistBlocksEvents(t *testing.T) {
	config := &common.WebSocketConfig{
		AllowedEvents: []string{"import_status"},
	}
	_, bus, conn := newTestSocket(t, config)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventImportProgress,
		Payload: map[string]interface{}{"job_id": "job_ws3"},
	}))
	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventImportStatus,
		Payload: map[string]interface{}{"job_id": "job_ws3", "status": "completed"},
	}))

	var msg WSMessage
	require.NoError(t, readMessage(conn, &msg))
	assert.Equal(t, "import_status", msg.Type)
}

func TestWebSocketClientCount(t *testing.T) {
	h, _, _ := newTestSocket(t, nil)

	require.Eventually(t, func() bool {
		return h.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)
}
