package monitoring

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
)

func TestHubBroadcastsPredictions(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	first := readMessage(t, conn)
	assert.Equal(t, StatsEvent, first.Type)

	hub.PublishPrediction(Prediction{
		RequestID: "req-1",
		Outcome:   OutcomeOK,
		Positives: map[string]bool{"diabetes": true},
		Probas:    map[string]float64{"diabetes": 81.5},
	})

	msg := readMessage(t, conn)
	assert.Equal(t, PredictionEvent, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var p Prediction
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "req-1", p.RequestID)
	assert.Equal(t, 81.5, p.Probas["diabetes"])

	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.Predictions[OutcomeOK])
	assert.Equal(t, int64(1), stats.ConnectedClients)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHubOutcomeFilter(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"?outcome=Error", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	readMessage(t, conn)

	hub.PublishPrediction(Prediction{RequestID: "ok-1", Outcome: OutcomeOK})
	hub.PublishPrediction(Prediction{RequestID: "err-1", Outcome: OutcomeError})

	msg := readMessage(t, conn)
	var p Prediction
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "err-1", p.RequestID)
	assert.Equal(t, int64(1), hub.GetStats().Predictions[OutcomeOK])
}

func TestParseOutcomes(t *testing.T) {
	assert.Nil(t, parseOutcomes(""))
	assert.Equal(t, map[string]bool{"error": true, "mismatch": true}, parseOutcomes(" error, MISMATCH ,"))
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	r := httptest.NewRequest(http.MethodGet, "/api/ws/predictions", nil)
	assert.True(t, check(r), "requests without Origin are allowed")

	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(r))

	assert.True(t, originChecker(nil)(r))
}
