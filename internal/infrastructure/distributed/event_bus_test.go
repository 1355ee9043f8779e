package distributed

import (
	"context"
	"os"
	"testing"
	"time"

	"edgeview/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// redisClient connects to EDGEVIEW_TEST_REDIS or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("EDGEVIEW_TEST_REDIS")
	if addr == "" {
		t.Skip("EDGEVIEW_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewEventBus_Channel(t *testing.T) {
	log := zap.NewNop().Sugar()
	assert.Equal(t, "edgeview:events", NewEventBus(nil, "edgeview", "a", log).Channel())
	assert.Equal(t, "events", NewEventBus(nil, "", "a", log).Channel())
}

func TestEventBus_DeliversRemoteEventsOnly(t *testing.T) {
	client := redisClient(t)
	ns := "edgeview-test-" + uuid.NewString()
	log := zap.NewNop().Sugar()

	local := NewEventBus(client, ns, "local", log)
	remote := NewEventBus(client, ns, "remote", log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.ViewerEvent, 4)
	errc := make(chan error, 1)
	go func() { errc <- local.Subscribe(ctx, func(ev domain.ViewerEvent) { got <- ev }) }()

	// Wait for the subscription to be registered before publishing.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, local.Channel()).Result()
		return err == nil && n[local.Channel()] == 1
	}, 2*time.Second, 10*time.Millisecond)

	own, err := domain.NewSessionStateEvent(domain.SessionIdle, domain.SessionSnapshot{SourceID: "own", State: domain.SessionNegotiating})
	require.NoError(t, err)
	require.NoError(t, local.Publish(ctx, own))

	theirs, err := domain.NewSessionStateEvent(domain.SessionIdle, domain.SessionSnapshot{SourceID: "theirs", State: domain.SessionNegotiating})
	require.NoError(t, err)
	require.NoError(t, remote.Publish(ctx, theirs))

	select {
	case ev := <-got:
		assert.Equal(t, domain.SourceID("theirs"), ev.SourceID)
		assert.Equal(t, "remote", ev.InstanceID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("remote event not delivered")
	}

	assert.ErrorIs(t, local.Subscribe(ctx, func(domain.ViewerEvent) {}), ErrAlreadySubscribed)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}
