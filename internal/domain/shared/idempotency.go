package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys of work that has already been carried out,
// such as provider webhook deliveries. It is a fast path in front of the
// authoritative state check, not a replacement for it.
type IdempotencyStore interface {
	// MarkProcessed records key for ttl.
	// Returns true if the key was newly recorded, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is currently recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases resources held by the store
	Close() error
}

// DefaultIdempotencyTTL covers the provider's redelivery window (three days for Stripe).
const DefaultIdempotencyTTL = 72 * time.Hour
