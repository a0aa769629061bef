// Package catalog owns product records and their stock quantities. Every
// quantity mutation runs in one store transaction and notifies the registered
// StockListeners inside that same transaction.
package catalog

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

type StockListener interface {
	OnStockChange(ctx context.Context, tx store.Tx, change ledger.StockChange) error
}

type Options struct {
	DefaultThreshold int
	// ReserveAttempts bounds whole-batch retries on storage contention.
	ReserveAttempts int
	Now             func() time.Time
}

type Catalog struct {
	store     store.Store
	listeners []StockListener
	log       *zap.Logger
	opts      Options
}

func New(st store.Store, log *zap.Logger, opts Options, listeners ...StockListener) *Catalog {
	if opts.ReserveAttempts <= 0 {
		opts.ReserveAttempts = 3
	}
	if opts.DefaultThreshold <= 0 {
		opts.DefaultThreshold = ledger.DefaultLowStockThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Catalog{store: st, listeners: listeners, log: log, opts: opts}
}

func (c *Catalog) now() time.Time { return c.opts.Now().UTC() }

func (c *Catalog) Create(ctx context.Context, spec ledger.ProductSpec) (ledger.Product, error) {
	now := c.now()
	p := ledger.Product{
		ID:                uuid.NewString(),
		Name:              spec.Name,
		SKU:               spec.SKU,
		Category:          spec.Category,
		Description:       spec.Description,
		Barcode:           spec.Barcode,
		Price:             spec.Price,
		Quantity:          spec.Quantity,
		LowStockThreshold: c.opts.DefaultThreshold,
		ImageURL:          spec.ImageURL,
		CreatedBy:         spec.CreatedBy,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if spec.LowStockThreshold != nil {
		p.LowStockThreshold = *spec.LowStockThreshold
	}
	p.Normalize()
	if err := ledger.ValidateProduct(p); err != nil {
		return ledger.Product{}, err
	}

	err := c.store.Update(ctx, func(tx store.Tx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		return c.notify(ctx, tx, ledger.ChangeOf(p))
	})
	if err != nil {
		return ledger.Product{}, err
	}
	c.log.Info("product created", zap.String("product_id", p.ID), zap.String("sku", p.SKU), zap.Int("quantity", p.Quantity))
	return p, nil
}

func (c *Catalog) Update(ctx context.Context, id string, patch ledger.ProductPatch) (ledger.Product, error) {
	var out ledger.Product
	err := c.store.Update(ctx, func(tx store.Tx) error {
		cur, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		next := cur
		patch.Apply(&next)
		next.Normalize()
		if err := ledger.ValidateProduct(next); err != nil {
			return err
		}
		if next.SKU != cur.SKU {
			other, err := tx.ProductBySKU(ctx, next.SKU)
			var nf *ledger.NotFoundError
			switch {
			case err == nil && other.ID != cur.ID:
				return &ledger.DuplicateSKUError{SKU: next.SKU}
			case err != nil && !errors.As(err, &nf):
				return err
			}
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = c.now()
		if err := tx.UpdateProduct(ctx, next, cur.Version); err != nil {
			return err
		}
		out = next
		if next.LowStockThreshold != cur.LowStockThreshold {
			return c.notify(ctx, tx, ledger.ChangeOf(next))
		}
		return nil
	})
	if err != nil {
		return ledger.Product{}, err
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (ledger.Product, error) {
	var p ledger.Product
	err := c.store.View(ctx, func(tx store.ReadTx) error {
		var err error
		p, err = tx.Product(ctx, id)
		return err
	})
	return p, err
}

// Lookup resolves every id or fails with NotFound for the first unknown one.
func (c *Catalog) Lookup(ctx context.Context, ids []string) (map[string]ledger.Product, error) {
	out := make(map[string]ledger.Product, len(ids))
	err := c.store.View(ctx, func(tx store.ReadTx) error {
		for _, id := range ids {
			if _, ok := out[id]; ok {
				continue
			}
			p, err := tx.Product(ctx, id)
			if err != nil {
				return err
			}
			out[id] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type ListQuery struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

type ProductPage struct {
	Products   []ledger.Product  `json:"products"`
	Pagination ledger.Pagination `json:"pagination"`
}

func (c *Catalog) List(ctx context.Context, q ListQuery) (ProductPage, error) {
	pg := ledger.NewPagination(0, q.Page, q.Limit)
	var out ProductPage
	err := c.store.View(ctx, func(tx store.ReadTx) error {
		ps, total, err := tx.Products(ctx, store.ProductFilter{
			Search:   q.Search,
			Category: q.Category,
			Offset:   pg.Offset(),
			Limit:    pg.Limit,
		})
		if err != nil {
			return err
		}
		out = ProductPage{Products: ps, Pagination: ledger.NewPagination(total, pg.Page, pg.Limit)}
		return nil
	})
	if out.Products == nil {
		out.Products = []ledger.Product{}
	}
	return out, err
}

// Delete removes the product from future lookups. Sales keep their own
// snapshot of name and price, so history is untouched.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	err := c.store.Update(ctx, func(tx store.Tx) error {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteProduct(ctx, id); err != nil {
			return err
		}
		ch := ledger.ChangeOf(p)
		ch.Deleted = true
		return c.notify(ctx, tx, ch)
	})
	if err != nil {
		return err
	}
	c.log.Info("product deleted", zap.String("product_id", id))
	return nil
}

// ReserveStock decrements every line or none of them. The first line whose
// product cannot cover the cumulative quantity requested for it fails the
// whole batch with InsufficientStockError.
func (c *Catalog) ReserveStock(ctx context.Context, lines []ledger.LineRequest) ([]ledger.Product, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	return c.mutate(ctx, "reserve stock", lines, -1)
}

// Release is the inverse of ReserveStock, used to hand back stock that was
// reserved for a sale that never got persisted.
func (c *Catalog) Release(ctx context.Context, lines []ledger.LineRequest) ([]ledger.Product, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	return c.mutate(ctx, "release stock", lines, +1)
}

func (c *Catalog) Restock(ctx context.Context, productID string, delta int) (ledger.Product, error) {
	if delta < 0 {
		return ledger.Product{}, ledger.Invalid("delta", "must not be negative")
	}
	ps, err := c.mutate(ctx, "restock", []ledger.LineRequest{{ProductID: productID, Quantity: delta}}, +1)
	if err != nil {
		return ledger.Product{}, err
	}
	c.log.Info("product restocked", zap.String("product_id", productID), zap.Int("delta", delta), zap.Int("quantity", ps[0].Quantity))
	return ps[0], nil
}

func checkLines(lines []ledger.LineRequest) error {
	if len(lines) == 0 {
		return ledger.Invalid("lines", "must contain at least one line")
	}
	for _, l := range lines {
		if l.ProductID == "" {
			return ledger.Invalid("lines.product_id", "is required")
		}
		if l.Quantity <= 0 {
			return ledger.Invalid("lines.quantity", "must be greater than zero")
		}
	}
	return nil
}

// mutate retries the whole batch from a fresh read on contention; a single
// line is never retried on its own.
func (c *Catalog) mutate(ctx context.Context, op string, lines []ledger.LineRequest, sign int) ([]ledger.Product, error) {
	var out []ledger.Product
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.ReserveAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.store.Update(ctx, func(tx store.Tx) error {
			var err error
			out, err = c.apply(ctx, tx, lines, sign)
			return err
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrConflict) || ledger.IsTransient(err) {
			c.log.Debug("stock mutation contended, retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ledger.Transient(op, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *Catalog) apply(ctx context.Context, tx store.Tx, lines []ledger.LineRequest, sign int) ([]ledger.Product, error) {
	var order []string
	want := make(map[string]int, len(lines))
	for _, l := range lines {
		if _, seen := want[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		want[l.ProductID] += l.Quantity
	}

	// lock in a stable order so concurrent batches cannot deadlock each other
	ids := append([]string(nil), order...)
	sort.Strings(ids)
	locked := make(map[string]ledger.Product, len(ids))
	for _, id := range ids {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = p
	}

	if sign < 0 {
		cum := make(map[string]int, len(order))
		for _, l := range lines {
			cum[l.ProductID] += l.Quantity
			if avail := locked[l.ProductID].Quantity; cum[l.ProductID] > avail {
				return nil, &ledger.InsufficientStockError{
					ProductID: l.ProductID,
					Requested: want[l.ProductID],
					Available: avail,
				}
			}
		}
	}

	now := c.now()
	out := make([]ledger.Product, 0, len(order))
	for _, id := range order {
		cur := locked[id]
		next := cur
		next.Quantity = cur.Quantity + sign*want[id]
		if next.Quantity < 0 {
			return nil, &ledger.InsufficientStockError{ProductID: id, Requested: want[id], Available: cur.Quantity}
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, next, cur.Version); err != nil {
			return nil, err
		}
		if err := c.notify(ctx, tx, ledger.ChangeOf(next)); err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

func (c *Catalog) notify(ctx context.Context, tx store.Tx, ch ledger.StockChange) error {
	for _, l := range c.listeners {
		if err := l.OnStockChange(ctx, tx, ch); err != nil {
			return err
		}
	}
	return nil
}
