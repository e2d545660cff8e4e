package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/redis"
)

const cacheScope = "payments"

// idempotencyCache is the Redis fast path in front of the durable
// idempotency table. Cache failures degrade to the table, never to an
// error for the caller.
type idempotencyCache struct {
	store redis.IdempotencyStore
	logg  *logger.Logger
	ttl   time.Duration
}

type cachedResult struct {
	RequestHash string
	PaymentID   uuid.UUID
}

func newIdempotencyCache(store redis.IdempotencyStore, logg *logger.Logger, ttl time.Duration) *idempotencyCache {
	return &idempotencyCache{store: store, logg: logg, ttl: ttl}
}

// Lookup returns the cached result for the key, or nil on miss or any
// cache trouble.
func (c *idempotencyCache) Lookup(ctx context.Context, key string) *cachedResult {
	if c == nil || c.store == nil {
		return nil
	}
	raw, err := c.store.Get(ctx, c.store.IdempotencyKey(cacheScope, key))
	if err != nil {
		if !redis.IsNil(err) {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "idempotency cache read failed")
		}
		return nil
	}
	hash, idText, ok := strings.Cut(raw, "|")
	if !ok {
		return nil
	}
	paymentID, err := uuid.Parse(idText)
	if err != nil {
		return nil
	}
	return &cachedResult{RequestHash: hash, PaymentID: paymentID}
}

// Store records the key's hash and payment id, best effort.
func (c *idempotencyCache) Store(ctx context.Context, key, requestHash string, paymentID uuid.UUID) {
	if c == nil || c.store == nil {
		return
	}
	value := fmt.Sprintf("%s|%s", requestHash, paymentID)
	if err := c.store.Set(ctx, c.store.IdempotencyKey(cacheScope, key), value, c.ttl); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "idempotency cache write failed")
	}
}
