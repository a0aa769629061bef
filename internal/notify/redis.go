package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-pos-ledger/internal/events"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
)

type RedisDedup struct {
	RDB     *redis.Client
	Service string
}

func (d RedisDedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return redisx.Claim(ctx, d.RDB, d.Service, eventID)
}

func (d RedisDedup) Unclaim(ctx context.Context, eventID string) error {
	return redisx.Unclaim(ctx, d.RDB, d.Service, eventID)
}

// RedisTakings keeps one hash per day with the summed total and sale count.
type RedisTakings struct {
	RDB *redis.Client
	Loc *time.Location
}

func (t RedisTakings) Add(ctx context.Context, p events.SaleRecordedPayload) error {
	loc := t.Loc
	if loc == nil {
		loc = time.UTC
	}
	key := fmt.Sprintf(redisx.KeyTakings, p.CreatedAt.In(loc).Format("20060102"))
	total, _ := p.Total.Float64()
	pipe := t.RDB.TxPipeline()
	pipe.HIncrByFloat(ctx, key, "total", total)
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.Expire(ctx, key, redisx.TTLTakings)
	_, err := pipe.Exec(ctx)
	return err
}
