package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"edgeview/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrAlreadySubscribed = errors.New("event bus already subscribed")

// EventBus shares viewer events between instances over Redis pub/sub.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	logger     *zap.SugaredLogger

	mu         sync.Mutex
	subscribed bool
}

func NewEventBus(client redis.UniversalClient, namespace, instanceID string, logger *zap.SugaredLogger) *EventBus {
	channel := "events"
	if namespace != "" {
		channel = namespace + ":events"
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
}

func (eb *EventBus) Channel() string { return eb.channel }

// Publish stamps ev with this instance's id and publishes it.
func (eb *EventBus) Publish(ctx context.Context, ev domain.ViewerEvent) error {
	ev.InstanceID = eb.instanceID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event", "type", ev.Type, "source_id", ev.SourceID)
	return nil
}

// Subscribe delivers events from other instances to handler until ctx is
// done. Only one subscription per bus is allowed.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(domain.ViewerEvent)) error {
	eb.mu.Lock()
	if eb.subscribed {
		eb.mu.Unlock()
		return ErrAlreadySubscribed
	}
	eb.subscribed = true
	eb.mu.Unlock()

	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.ViewerEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			// Skip events from this instance
			if ev.InstanceID == eb.instanceID {
				continue
			}
			handler(ev)
		}
	}
}
