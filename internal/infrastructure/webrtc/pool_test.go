package webrtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/internal/core/services"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pooledFixture struct {
	pool    *services.SessionPool
	peers   *fakePeerFactory
	signal  *fakeSignaler
	entered chan struct{}
	release chan struct{}
}

// newPooledFixture builds a pool of real sessions whose WHEP exchange
// blocks until release is closed.
func newPooledFixture(t *testing.T) *pooledFixture {
	t.Helper()
	f := &pooledFixture{
		peers:   &fakePeerFactory{},
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	f.signal = &fakeSignaler{fn: func(ctx context.Context, _, _ string) (string, error) {
		f.entered <- struct{}{}
		select {
		case <-f.release:
			return "v=0 answer", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}

	log := zap.NewNop().Sugar()
	factory := func(slot domain.SlotID, source domain.StreamSource) (ports.Session, error) {
		return NewSession(slot, source, &fakeSink{}, f.peers, f.signal, quietConfig(), log), nil
	}
	f.pool = services.NewSessionPool(6, factory, log)
	t.Cleanup(f.pool.Close)
	return f
}

func (f *pooledFixture) waitExchanges(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d exchanges started", i, n)
		}
	}
}

func pooledSource(id string) domain.StreamSource {
	return domain.StreamSource{ID: domain.SourceID(id), URL: "http://cam.local:8889/live/cam/whep"}
}

func TestPooledSession_ConnectAfterRemoveCreatesNoPeer(t *testing.T) {
	f := newPooledFixture(t)
	close(f.release)

	id, err := f.pool.AddSession(pooledSource("edge01"))
	require.NoError(t, err)
	held, err := f.pool.Session(id)
	require.NoError(t, err)

	require.NoError(t, f.pool.RemoveSession(id))

	assert.ErrorIs(t, held.Connect(context.Background()), domain.ErrSessionClosed)
	assert.ErrorIs(t, held.Reconnect(context.Background()), domain.ErrSessionClosed)
	assert.Equal(t, domain.SessionIdle, held.Snapshot().State)
	assert.Zero(t, f.peers.created())
	assert.Zero(t, f.pool.Size())
}

func TestPooledSession_RemoveDuringExchangeReleasesPeer(t *testing.T) {
	f := newPooledFixture(t)

	id, err := f.pool.AddSession(pooledSource("edge01"))
	require.NoError(t, err)
	held, err := f.pool.Session(id)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- held.Connect(context.Background()) }()
	f.waitExchanges(t, 1)

	require.NoError(t, f.pool.RemoveSession(id))
	close(f.release)

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, domain.ErrStaleNegotiation), "unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not return")
	}

	assert.Equal(t, domain.SessionIdle, held.Snapshot().State)
	assert.Equal(t, 1, f.peers.created())
	assert.Equal(t, f.peers.created(), f.peers.closedTotal())
	assert.ErrorIs(t, held.Connect(context.Background()), domain.ErrSessionClosed)
	assert.Equal(t, 1, f.peers.created())
}

func TestPooledSession_CloseDuringConnectAllReleasesEveryPeer(t *testing.T) {
	f := newPooledFixture(t)

	for _, id := range []string{"edge01", "edge02", "edge03"} {
		_, err := f.pool.AddSession(pooledSource(id))
		require.NoError(t, err)
	}

	connected := make(chan int, 1)
	go func() { connected <- f.pool.ConnectAll(context.Background()) }()
	f.waitExchanges(t, 3)

	f.pool.Close()
	close(f.release)

	select {
	case n := <-connected:
		assert.Zero(t, n)
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectAll did not return")
	}

	assert.Equal(t, 3, f.peers.created())
	assert.Equal(t, 3, f.peers.closedTotal())
	assert.Zero(t, f.pool.ConnectAll(context.Background()))
	assert.Equal(t, 3, f.peers.created())
}

func TestPooledSession_RemoveConnectedSessionReleasesPeer(t *testing.T) {
	f := newPooledFixture(t)
	close(f.release)

	id, err := f.pool.AddSession(pooledSource("edge01"))
	require.NoError(t, err)
	held, err := f.pool.Session(id)
	require.NoError(t, err)

	require.NoError(t, held.Connect(context.Background()))
	f.peers.last().emitTrack(newFakeTrack(webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8))
	require.Equal(t, domain.SessionConnected, held.Snapshot().State)

	require.NoError(t, f.pool.RemoveSession(id))
	assert.Equal(t, 1, f.peers.closedTotal())
	assert.Equal(t, domain.SessionIdle, held.Snapshot().State)
}
