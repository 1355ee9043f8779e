package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edgeview/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startServer(t *testing.T) (*EventServer, string) {
	t.Helper()
	s := NewEventServer(Config{}, zap.NewNop().Sugar())
	srv := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcast_ReachesEveryClient(t *testing.T) {
	s, url := startServer(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return s.Clients() == 2 }, time.Second, 5*time.Millisecond)

	ev, err := domain.NewSessionStateEvent(domain.SessionNegotiating, domain.SessionSnapshot{
		SourceID: "edge01",
		State:    domain.SessionConnected,
		Tracks:   2,
		Changed:  time.Now(),
	})
	require.NoError(t, err)
	s.Broadcast(ev)

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var got domain.ViewerEvent
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, domain.EventSessionState, got.Type)
		assert.Equal(t, domain.SourceID("edge01"), got.SourceID)

		var payload domain.SessionStatePayload
		require.NoError(t, json.Unmarshal(got.Payload, &payload))
		assert.Equal(t, domain.SessionNegotiating, payload.Previous)
		assert.Equal(t, domain.SessionConnected, payload.Session.State)
	}
}

func TestClientDisconnect_Unregisters(t *testing.T) {
	s, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClose_SendsCloseFrame(t *testing.T) {
	s, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	assert.Equal(t, 0, s.Clients())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// Late clients are turned away.
	late := dial(t, url)
	late.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, s.Clients())
}
