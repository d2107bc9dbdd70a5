package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// DefaultDeliveryKeyPrefix namespaces webhook delivery keys
const DefaultDeliveryKeyPrefix = "billing:webhook:delivery:"

// RedisDeliveryStore remembers processed webhook deliveries in Redis so every
// instance behind the load balancer sees the same set.
type RedisDeliveryStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient opens a client for cfg and verifies it with PING
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewRedisDeliveryStore wraps an existing client
func NewRedisDeliveryStore(client redis.UniversalClient, keyPrefix string) *RedisDeliveryStore {
	if keyPrefix == "" {
		keyPrefix = DefaultDeliveryKeyPrefix
	}
	return &RedisDeliveryStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed records eventID for ttl. It returns false when the delivery
// was already recorded.
func (s *RedisDeliveryStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record delivery %s: %w", eventID, err)
	}
	return ok, nil
}

// IsProcessed reports whether eventID was recorded and has not expired
func (s *RedisDeliveryStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up delivery %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Client exposes the underlying client so other Redis-backed components can share the connection pool
func (s *RedisDeliveryStore) Client() redis.UniversalClient {
	return s.client
}

// Close closes the Redis client
func (s *RedisDeliveryStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisDeliveryStore)(nil)
