package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/pkg/retry"
	"edgeview/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// Client is the part of go-redis the source store needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

func namespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// SourceRepository stores the list as one JSON string value.
type SourceRepository struct {
	client Client
	key    string
	retry  retry.Config
}

func NewSourceRepository(client Client, namespace, key string) *SourceRepository {
	cfg := retry.DefaultConfig()
	cfg.NonRetryableErrors = []error{context.Canceled, context.DeadlineExceeded, redis.Nil}
	return &SourceRepository{
		client: client,
		key:    namespacedKey(namespace, key),
		retry:  cfg,
	}
}

func (r *SourceRepository) Key() string { return r.key }

func (r *SourceRepository) Load(ctx context.Context) ([]domain.StreamSource, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "load", "redis")
	defer span.End()

	data, err := retry.RetryWithResult(ctx, r.retry, func() ([]byte, error) {
		return r.client.Get(ctx, r.key).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNothingPersisted
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get %s from Redis: %w", r.key, err)
	}

	var sources []domain.StreamSource
	if err := json.Unmarshal(data, &sources); err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to decode %s: %w", r.key, err)
	}
	return sources, nil
}

func (r *SourceRepository) Save(ctx context.Context, sources []domain.StreamSource) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "save", "redis")
	defer span.End()

	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	err = retry.Retry(ctx, r.retry, func() error {
		return r.client.Set(ctx, r.key, data, 0).Err()
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to set %s in Redis: %w", r.key, err)
	}
	return nil
}

var _ ports.SourceRepository = (*SourceRepository)(nil)
