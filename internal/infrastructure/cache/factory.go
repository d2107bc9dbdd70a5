package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const memorySweepInterval = 5 * time.Minute

// NewDeliveryStore returns a Redis-backed store when Redis answers. Otherwise
// it falls back to memory unless cfg.Required is set. Without the store a
// redelivery costs one ledger lookup.
func NewDeliveryStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-memory webhook delivery store")
		return NewMemoryDeliveryStore(memorySweepInterval), nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err == nil {
		logger.Info("Using Redis webhook delivery store", zap.String("addr", cfg.Addr()))
		return NewRedisDeliveryStore(client, cfg.KeyPrefix), nil
	}

	if cfg.Required {
		return nil, fmt.Errorf("redis required for webhook delivery store: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory webhook delivery store. "+
		"Redeliveries across instances will be resolved by the ledger.",
		zap.Error(err))
	return NewMemoryDeliveryStore(memorySweepInterval), nil
}
