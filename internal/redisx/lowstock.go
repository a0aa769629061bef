package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// LowStockEntry is what the notifier keeps per product on the low-stock board.
type LowStockEntry struct {
	AlertID         string `json:"alert_id"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	CurrentQuantity int    `json:"current_quantity"`
	Threshold       int    `json:"threshold"`
}

// LowStockBoard is a Redis hash of products currently below threshold, fed by
// alert events and read by dashboards without touching the ledger store.
type LowStockBoard struct {
	rdb *redis.Client
}

func NewLowStockBoard(rdb *redis.Client) *LowStockBoard {
	return &LowStockBoard{rdb: rdb}
}

func (b *LowStockBoard) Put(ctx context.Context, e LowStockEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := b.rdb.HSet(ctx, KeyLowStock, e.ProductID, raw).Err(); err != nil {
		return fmt.Errorf("lowstock put %s: %w", e.ProductID, err)
	}
	return nil
}

func (b *LowStockBoard) Remove(ctx context.Context, productID string) error {
	return b.rdb.HDel(ctx, KeyLowStock, productID).Err()
}

func (b *LowStockBoard) All(ctx context.Context) ([]LowStockEntry, error) {
	m, err := b.rdb.HGetAll(ctx, KeyLowStock).Result()
	if err != nil {
		return nil, fmt.Errorf("lowstock list: %w", err)
	}
	out := make([]LowStockEntry, 0, len(m))
	for _, raw := range m {
		var e LowStockEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
