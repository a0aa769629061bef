package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvoiceSequence numbers invoices per calendar day: PREFIX-YYYYMMDD-000042.
// The counter lives in Redis so every API instance draws from the same one.
type InvoiceSequence struct {
	rdb    *redis.Client
	prefix string
	loc    *time.Location
}

func NewInvoiceSequence(rdb *redis.Client, prefix string, loc *time.Location) *InvoiceSequence {
	if prefix == "" {
		prefix = "INV"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &InvoiceSequence{rdb: rdb, prefix: prefix, loc: loc}
}

func (s *InvoiceSequence) Next(ctx context.Context, at time.Time) (string, error) {
	day := at.In(s.loc).Format("20060102")
	key := fmt.Sprintf(KeyInvoiceSeq, day)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, TTLInvoiceSeq)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("invoice sequence %s: %w", day, err)
	}
	return fmt.Sprintf("%s-%s-%06d", s.prefix, day, incr.Val()), nil
}
