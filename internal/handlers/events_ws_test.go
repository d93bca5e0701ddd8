package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofilter/autofilter/internal/events"
)

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv()
	srv := httptest.NewServer(env.h.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	env.hub.Publish(events.Event{Type: events.TokenOpened, TokenID: "TOKA", Chain: "dexscreener:solana", TabID: "T1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt events.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, events.TokenOpened, evt.Type)
	assert.Equal(t, "TOKA", evt.TokenID)
	assert.NotZero(t, evt.Timestamp)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsUnavailable(t *testing.T) {
	env := newTestEnv()
	env.h.Events = nil
	w := do(t, routes(env), "GET", "/events", "")
	assert.Equal(t, 503, w.Code)
}
