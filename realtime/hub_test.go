package realtime_test

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

	"github.com/camden-git/photopipeline/events"
	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/realtime"
)

func TestHubDeliversPipelineEvents(t *testing.T) {
	hub := realtime.NewHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), events.New(events.PhotoStage, 9, map[string]any{
		"stage":  "generating_hashes",
		"status": "processing",
		"try":    1,
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg realtime.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, events.PhotoStage, msg.Type)
	assert.Equal(t, uint(9), msg.PhotoID)
	assert.Equal(t, "generating_hashes", msg.Stage)
	assert.Equal(t, "processing", msg.Status)
	assert.Equal(t, float64(1), msg.Extra["try"])
	assert.NotZero(t, msg.Timestamp)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub := realtime.NewHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
