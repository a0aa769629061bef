// Package notify consumes ledger events and keeps the Redis views that
// dashboards read: the low-stock board and the running daily takings.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/events"
	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
)

// Deduper remembers which event ids were already applied.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Unclaim(ctx context.Context, eventID string) error
}

type Board interface {
	Put(ctx context.Context, e redisx.LowStockEntry) error
	Remove(ctx context.Context, productID string) error
}

type Takings interface {
	Add(ctx context.Context, p events.SaleRecordedPayload) error
}

type Service struct {
	Dedup   Deduper
	Board   Board
	Takings Takings
	Log     *zap.Logger
}

// HandleAlert applies StockAlertRaised/Resolved to the low-stock board.
func (s *Service) HandleAlert(ctx context.Context, m kafkago.Message) error {
	return s.handle(ctx, m, func(env events.Envelope) error {
		p, err := kafkax.UnwrapPayload[events.StockAlertPayload](env.Payload)
		if err != nil {
			return err
		}
		switch env.EventType {
		case events.EventStockAlertRaised:
			s.Log.Warn("low stock",
				zap.String("product_id", p.ProductID),
				zap.String("product_name", p.ProductName),
				zap.Int("quantity", p.CurrentQuantity),
				zap.Int("threshold", p.Threshold))
			return s.Board.Put(ctx, redisx.LowStockEntry{
				AlertID:         p.AlertID,
				ProductID:       p.ProductID,
				ProductName:     p.ProductName,
				CurrentQuantity: p.CurrentQuantity,
				Threshold:       p.Threshold,
			})
		case events.EventStockAlertResolved:
			s.Log.Info("stock recovered", zap.String("product_id", p.ProductID), zap.Int("quantity", p.CurrentQuantity))
			return s.Board.Remove(ctx, p.ProductID)
		}
		return nil
	})
}

// HandleSale adds a recorded sale to the day's running takings.
func (s *Service) HandleSale(ctx context.Context, m kafkago.Message) error {
	return s.handle(ctx, m, func(env events.Envelope) error {
		if env.EventType != events.EventSaleRecorded {
			return nil
		}
		p, err := kafkax.UnwrapPayload[events.SaleRecordedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Takings.Add(ctx, p)
	})
}

// handle decodes the envelope and applies it at most once per event id. A
// failed apply gives up its claim so the consumer's retry is not skipped.
func (s *Service) handle(ctx context.Context, m kafkago.Message, apply func(events.Envelope) error) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message; retrying cannot help
		s.Log.Error("undecodable event dropped", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	fresh, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !fresh {
		s.Log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}
	if err := apply(env); err != nil {
		if uerr := s.Dedup.Unclaim(context.WithoutCancel(ctx), env.EventID); uerr != nil {
			s.Log.Warn("unclaim failed", zap.String("event_id", env.EventID), zap.Error(uerr))
		}
		return fmt.Errorf("apply %s %s: %w", env.EventType, env.EventID, err)
	}
	return nil
}
