package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const currentSchemaVersion = 1

// Migration upgrades the keys under one namespace.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client redis.Cmdable, namespace, legacyKey string) error
}

func schemaVersionKey(namespace string) string {
	return namespacedKey(namespace, "schema:version")
}

// Migrate runs all pending migrations for namespace.
func Migrate(ctx context.Context, client redis.Cmdable, namespace, legacyKey string, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client, namespace)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date",
				"namespace", namespace,
				"current_version", currentVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "namespace", namespace, "version", migration.Version)
		}
		if err := migration.Up(ctx, client, namespace, legacyKey); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, namespace, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	return nil
}

func getSchemaVersion(ctx context.Context, client redis.Cmdable, namespace string) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey(namespace)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client redis.Cmdable, namespace string, version int) error {
	return client.Set(ctx, schemaVersionKey(namespace), version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Version 1 adopts a list saved under the bare key by older
			// deployments into the namespace.
			Version: 1,
			Up: func(ctx context.Context, client redis.Cmdable, namespace, legacyKey string) error {
				if legacyKey == "" || namespace == "" {
					return nil
				}
				target := namespacedKey(namespace, legacyKey)
				exists, err := client.Exists(ctx, target).Result()
				if err != nil {
					return err
				}
				if exists > 0 {
					return nil
				}
				data, err := client.Get(ctx, legacyKey).Result()
				if errors.Is(err, redis.Nil) {
					return nil
				}
				if err != nil {
					return err
				}
				return client.Set(ctx, target, data, 0).Err()
			},
		},
	}
}
