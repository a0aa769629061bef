package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/reports"
)

// ReportCache stores summaries of closed days. Redis failures degrade to a
// cache miss.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewReportCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *ReportCache {
	return &ReportCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *ReportCache) Get(ctx context.Context, key string) (reports.Summary, bool) {
	var s reports.Summary
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(KeyReport, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("report cache get failed", zap.String("key", key), zap.Error(err))
		}
		return s, false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		c.log.Warn("report cache entry unreadable", zap.String("key", key), zap.Error(err))
		return s, false
	}
	return s, true
}

func (c *ReportCache) Set(ctx context.Context, key string, s reports.Summary) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyReport, key), raw, c.ttl).Err(); err != nil {
		c.log.Warn("report cache set failed", zap.String("key", key), zap.Error(err))
	}
}
