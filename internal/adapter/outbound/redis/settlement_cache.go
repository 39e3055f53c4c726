package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopcore/installment/internal/port/outbound"
)

const (
	settlementKeyPrefix  = "installment:settled:"
	defaultSettlementTTL = 24 * time.Hour
)

// settlementCache implements outbound.SettlementCachePort.
type settlementCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSettlementCache creates a new settlement cache adapter.
func NewSettlementCache(client redis.UniversalClient, ttl time.Duration) outbound.SettlementCachePort {
	if ttl <= 0 {
		ttl = defaultSettlementTTL
	}
	return &settlementCache{client: client, ttl: ttl}
}

func (c *settlementCache) IsSettled(ctx context.Context, token string) (bool, error) {
	err := c.client.Get(ctx, settlementKeyPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *settlementCache) MarkSettled(ctx context.Context, token string) error {
	return c.client.Set(ctx, settlementKeyPrefix+token, 1, c.ttl).Err()
}

// Compile-time check
var _ outbound.SettlementCachePort = (*settlementCache)(nil)
