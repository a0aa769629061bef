package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending = ""

// SaleIdempotency remembers which sale an Idempotency-Key produced, so a
// retried checkout returns the original sale instead of charging twice.
type SaleIdempotency struct {
	rdb        *redis.Client
	pendingTTL time.Duration
}

// NewSaleIdempotency keeps an in-flight claim for pendingTTL, which should
// outlast one request; a claim left by a crashed process then frees itself.
// Completed keys live for TTLIdempotency.
func NewSaleIdempotency(rdb *redis.Client, pendingTTL time.Duration) *SaleIdempotency {
	if pendingTTL <= 0 {
		pendingTTL = TTLIdempotencyPending
	}
	return &SaleIdempotency{rdb: rdb, pendingTTL: pendingTTL}
}

// Begin claims key. When another request already claimed it, started is false
// and saleID is the sale it produced, or empty while that request is in flight.
func (s *SaleIdempotency) Begin(ctx context.Context, key string) (saleID string, started bool, err error) {
	k := fmt.Sprintf(KeyIdemSaleCreate, key)
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.rdb.SetNX(ctx, k, pending, s.pendingTTL).Result()
		if err != nil {
			return "", false, fmt.Errorf("idempotency begin: %w", err)
		}
		if ok {
			return "", true, nil
		}
		v, err := s.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between the two calls; claim again
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("idempotency lookup: %w", err)
		}
		return v, false, nil
	}
	return "", false, fmt.Errorf("idempotency begin %s: key kept expiring", key)
}

func (s *SaleIdempotency) Complete(ctx context.Context, key, saleID string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyIdemSaleCreate, key), saleID, TTLIdempotency).Err()
}

// Abort drops the claim of a request that failed, so the client may retry.
func (s *SaleIdempotency) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyIdemSaleCreate, key)).Err()
}
