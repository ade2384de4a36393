package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"gatilho_backend/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialTestStream(t *testing.T, stream *AlertStreamService, userID uint) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream.HandleConnection(w, r, userID)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAlertStreamDeliversToOwner(t *testing.T) {
	stream := NewAlertStreamService()

	conn := dialTestStream(t, stream, 7)
	require.Eventually(t, func() bool {
		return stream.ClientCount(7) == 1
	}, time.Second, 10*time.Millisecond)

	event := AlertEvent{
		Type:         "alert_triggered",
		AlertID:      12,
		Ticker:       "PETR4",
		AlertType:    models.AlertTypePrice,
		Condition:    models.ConditionAboveOrEqual,
		TargetValue:  38.00,
		CurrentValue: 38.50,
		TriggeredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	stream.PushAlert(7, event)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var received AlertEvent
	require.NoError(t, json.Unmarshal(message, &received))
	require.Equal(t, "alert_triggered", received.Type)
	require.Equal(t, "PETR4", received.Ticker)
	require.Equal(t, 38.50, received.CurrentValue)
}

func TestAlertStreamPushToOtherUserIsSilent(t *testing.T) {
	stream := NewAlertStreamService()

	conn := dialTestStream(t, stream, 7)
	require.Eventually(t, func() bool {
		return stream.ClientCount(7) == 1
	}, time.Second, 10*time.Millisecond)

	// No connection for user 8; must not panic or reach user 7
	stream.PushAlert(8, AlertEvent{Type: "alert_triggered", Ticker: "VALE3"})
	stream.PushAlert(7, AlertEvent{Type: "alert_triggered", Ticker: "PETR4"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var received AlertEvent
	require.NoError(t, json.Unmarshal(message, &received))
	require.Equal(t, "PETR4", received.Ticker, "user 7 must only see their own event")
}

func TestAlertStreamHeartbeat(t *testing.T) {
	stream := NewAlertStreamService()

	conn := dialTestStream(t, stream, 7)
	require.Eventually(t, func() bool {
		return stream.ClientCount(7) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "pong", string(message))
}

func TestAlertStreamDisconnectRemovesClient(t *testing.T) {
	stream := NewAlertStreamService()

	conn := dialTestStream(t, stream, 7)
	require.Eventually(t, func() bool {
		return stream.TotalClients() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return stream.TotalClients() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, stream.ClientCount(7))
}

func TestAlertStreamShutdownReleasesPumps(t *testing.T) {
	stream := NewAlertStreamService()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream.HandleConnection(w, r, 7)
	}))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	baseline := runtime.NumGoroutine()

	for i := 0; i < 3; i++ {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		if resp != nil {
			resp.Body.Close()
		}
		defer conn.Close()
	}
	require.Eventually(t, func() bool {
		return stream.TotalClients() == 3
	}, time.Second, 10*time.Millisecond)

	stream.Shutdown()
	require.Zero(t, stream.TotalClients())

	// The read pumps of the closed connections must unwind rather than park
	// on the unregister channel after the dispatch loop has exited.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+1
	}, 3*time.Second, 25*time.Millisecond)
}

func TestAlertStreamCountsPerUser(t *testing.T) {
	stream := NewAlertStreamService()

	dialTestStream(t, stream, 7)
	dialTestStream(t, stream, 7)
	dialTestStream(t, stream, 9)

	require.Eventually(t, func() bool {
		return stream.TotalClients() == 3
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 2, stream.ClientCount(7))
	require.Equal(t, 1, stream.ClientCount(9))
}
