// Package alerts derives low-stock alerts from catalog stock changes.
package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/events"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

type Action int

const (
	NoOp Action = iota
	Raise
	Resolve
)

func (a Action) String() string {
	switch a {
	case Raise:
		return "raise"
	case Resolve:
		return "resolve"
	}
	return "noop"
}

// Evaluate is the per-product state machine:
//
//	Normal   --quantity < threshold-->  LowStock (raise)
//	LowStock --quantity >= threshold--> Normal   (resolve)
//
// A deleted product leaves LowStock as well. Everything else is a no-op, which
// is what makes replaying the same change harmless.
func Evaluate(ch ledger.StockChange, hasActive bool) Action {
	switch {
	case ch.Deleted && hasActive:
		return Resolve
	case ch.Deleted:
		return NoOp
	case ch.NewQuantity < ch.Threshold && !hasActive:
		return Raise
	case ch.NewQuantity >= ch.Threshold && hasActive:
		return Resolve
	}
	return NoOp
}

type Monitor struct {
	store store.Store
	pub   events.Publisher
	log   *zap.Logger
	now   func() time.Time
}

func NewMonitor(st store.Store, pub events.Publisher, log *zap.Logger) *Monitor {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Monitor{store: st, pub: pub, log: log, now: time.Now}
}

// OnStockChange runs inside the transaction that changed the stock, so alert
// state commits or rolls back together with the quantity it describes.
func (m *Monitor) OnStockChange(ctx context.Context, tx store.Tx, ch ledger.StockChange) error {
	active, hasActive, err := tx.ActiveAlert(ctx, ch.ProductID)
	if err != nil {
		return err
	}

	switch Evaluate(ch, hasActive) {
	case Raise:
		a := ledger.StockAlert{
			ID:              uuid.NewString(),
			ProductID:       ch.ProductID,
			ProductName:     ch.ProductName,
			CurrentQuantity: ch.NewQuantity,
			Threshold:       ch.Threshold,
			Status:          ledger.AlertActive,
			CreatedAt:       m.now().UTC(),
		}
		if err := tx.InsertAlert(ctx, a); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// someone else raised it first; the guard held
				return nil
			}
			return err
		}
		tx.AfterCommit(func() {
			m.log.Info("low stock alert raised",
				zap.String("product_id", a.ProductID), zap.Int("quantity", a.CurrentQuantity), zap.Int("threshold", a.Threshold))
			m.pub.AlertRaised(context.WithoutCancel(ctx), a)
		})
	case Resolve:
		resolvedAt := m.now().UTC()
		active.Status = ledger.AlertResolved
		active.ResolvedAt = &resolvedAt
		active.CurrentQuantity = ch.NewQuantity
		if err := tx.UpdateAlert(ctx, active); err != nil {
			return err
		}
		tx.AfterCommit(func() {
			m.log.Info("low stock alert resolved",
				zap.String("product_id", active.ProductID), zap.Int("quantity", active.CurrentQuantity))
			m.pub.AlertResolved(context.WithoutCancel(ctx), active)
		})
	}
	return nil
}

func (m *Monitor) Alerts(ctx context.Context, status ledger.AlertStatus) ([]ledger.StockAlert, error) {
	var out []ledger.StockAlert
	err := m.store.View(ctx, func(tx store.ReadTx) error {
		var err error
		out, err = tx.Alerts(ctx, status)
		return err
	})
	if out == nil {
		out = []ledger.StockAlert{}
	}
	return out, err
}

type LowStockItem struct {
	Product ledger.Product    `json:"product"`
	Alert   ledger.StockAlert `json:"alert"`
}

// LowStock lists the products that currently carry an active alert.
func (m *Monitor) LowStock(ctx context.Context) ([]LowStockItem, error) {
	out := []LowStockItem{}
	err := m.store.View(ctx, func(tx store.ReadTx) error {
		active, err := tx.Alerts(ctx, ledger.AlertActive)
		if err != nil {
			return err
		}
		for _, a := range active {
			p, err := tx.Product(ctx, a.ProductID)
			var nf *ledger.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, LowStockItem{Product: p, Alert: a})
		}
		return nil
	})
	return out, err
}
