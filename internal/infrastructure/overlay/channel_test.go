package overlay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edgeview/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// detectionServer accepts sockets and runs handle on each.
type detectionServer struct {
	*httptest.Server
	conns atomic.Int32
}

func newDetectionServer(t *testing.T, handle func(conn *websocket.Conn)) *detectionServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s := &detectionServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns.Add(1)
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *detectionServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

type overlayMetrics struct {
	mu           sync.Mutex
	batches      int
	boxes        int
	reconnects   int
	decodeErrors int
	connected    bool
}

func (m *overlayMetrics) SetOverlayConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

func (m *overlayMetrics) RecordDetectionBatch(boxes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	m.boxes += boxes
}

func (m *overlayMetrics) RecordOverlayReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
}

func (m *overlayMetrics) RecordOverlayDecodeError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodeErrors++
}

func fastReconnect() retry.Config {
	return retry.Config{Enabled: true, InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2}
}

// holdOpen keeps the server side open until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestChannel_ReceivesAndRendersBatches(t *testing.T) {
	srv := newDetectionServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"dets":[{"cls":0,"conf":0.9,"x":0.1,"y":0.5,"w":0.2,"h":0.2}],"w":640,"h":360}`))
		holdOpen(conn)
	})

	metrics := &overlayMetrics{}
	renderer := NewRenderer(100, 100)
	ch := NewChannel(Config{Endpoint: srv.wsURL(), Reconnect: fastReconnect()},
		NewDecoder([]string{"person"}), renderer, metrics, zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background()))
	defer ch.Close()

	require.Eventually(t, func() bool {
		_, ok := ch.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	batch, _ := ch.Latest()
	require.Len(t, batch.Detections, 1)
	assert.Equal(t, "person", batch.Detections[0].Label)
	assert.True(t, ch.Connected())
	assert.Equal(t, boxColor, renderer.Image().RGBAAt(10, 60))

	metrics.mu.Lock()
	assert.Equal(t, 1, metrics.batches)
	assert.Equal(t, 1, metrics.boxes)
	assert.Equal(t, 1, metrics.decodeErrors)
	assert.True(t, metrics.connected)
	metrics.mu.Unlock()
}

func TestChannel_RedialsAfterDrop(t *testing.T) {
	srv := newDetectionServer(t, func(conn *websocket.Conn) {
		// Drop immediately.
	})

	metrics := &overlayMetrics{}
	ch := NewChannel(Config{Endpoint: srv.wsURL(), Reconnect: fastReconnect()}, NewDecoder(nil), nil, metrics, zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background()))

	assert.Eventually(t, func() bool { return srv.conns.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	ch.Close()
	assert.False(t, ch.Running())
	assert.False(t, ch.Connected())

	metrics.mu.Lock()
	assert.GreaterOrEqual(t, metrics.reconnects, 2)
	metrics.mu.Unlock()
}

func TestChannel_NoRedialWhenReconnectDisabled(t *testing.T) {
	srv := newDetectionServer(t, func(conn *websocket.Conn) {})

	ch := NewChannel(Config{Endpoint: srv.wsURL()}, NewDecoder(nil), nil, nil, zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background()))

	assert.Eventually(t, func() bool { return !ch.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), srv.conns.Load())
	ch.Close()
}

func TestChannel_CloseReleasesSocket(t *testing.T) {
	released := make(chan struct{})
	srv := newDetectionServer(t, func(conn *websocket.Conn) {
		holdOpen(conn)
		close(released)
	})

	ch := NewChannel(Config{Endpoint: srv.wsURL(), Reconnect: fastReconnect()}, NewDecoder(nil), nil, nil, zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background()))
	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)

	ch.Close()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("server side still open after Close")
	}
	assert.ErrorIs(t, ch.Open(context.Background()), ErrChannelClosed)
	assert.Equal(t, int32(1), srv.conns.Load())
}

func TestChannel_OpenTwiceIsNoOp(t *testing.T) {
	srv := newDetectionServer(t, holdOpen)

	ch := NewChannel(Config{Endpoint: srv.wsURL()}, NewDecoder(nil), nil, nil, zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background()))
	require.NoError(t, ch.Open(context.Background()))
	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), srv.conns.Load())
	ch.Close()
}
