// Package memstore implements store.Store on go-memdb. Write transactions are
// serialized by memdb itself, reads see an immutable snapshot.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

const (
	tableProducts = "products"
	tableSales    = "sales"
	tableAlerts   = "alerts"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableProducts: {
				Name: tableProducts,
				Indexes: map[string]*memdb.IndexSchema{
					"id":  {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"sku": {Name: "sku", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "SKU"}},
				},
			},
			tableSales: {
				Name: tableSales,
				Indexes: map[string]*memdb.IndexSchema{
					"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"invoice": {Name: "invoice", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "InvoiceNumber"}},
					"created": {Name: "created", Indexer: &timeFieldIndex{Field: "CreatedAt"}},
				},
			},
			tableAlerts: {
				Name: tableAlerts,
				Indexes: map[string]*memdb.IndexSchema{
					"id":     {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"status": {Name: "status", Indexer: &memdb.StringFieldIndex{Field: "Status"}},
					"product_status": {
						Name: "product_status",
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "ProductID"},
							&memdb.StringFieldIndex{Field: "Status"},
						}},
					},
				},
			},
		},
	}
}

type Store struct {
	db *memdb.MemDB
}

func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	return fn(&tx{txn: txn})
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	t := &tx{txn: txn}
	if err := fn(t); err != nil {
		return err
	}
	// a caller that gave up must not see its work committed behind its back
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.after) > 0 {
		hooks := t.after
		txn.Defer(func() {
			for _, h := range hooks {
				h()
			}
		})
	}
	txn.Commit()
	return nil
}

type tx struct {
	txn   *memdb.Txn
	after []func()
}

func (t *tx) AfterCommit(fn func()) { t.after = append(t.after, fn) }

func (t *tx) Product(_ context.Context, id string) (ledger.Product, error) {
	raw, err := t.txn.First(tableProducts, "id", id)
	if err != nil {
		return ledger.Product{}, err
	}
	if raw == nil {
		return ledger.Product{}, &ledger.NotFoundError{Entity: "product", ID: id}
	}
	return *raw.(*ledger.Product), nil
}

func (t *tx) ProductBySKU(_ context.Context, sku string) (ledger.Product, error) {
	raw, err := t.txn.First(tableProducts, "sku", sku)
	if err != nil {
		return ledger.Product{}, err
	}
	if raw == nil {
		return ledger.Product{}, &ledger.NotFoundError{Entity: "product", ID: sku}
	}
	return *raw.(*ledger.Product), nil
}

func (t *tx) Products(_ context.Context, f store.ProductFilter) ([]ledger.Product, int, error) {
	it, err := t.txn.Get(tableProducts, "id")
	if err != nil {
		return nil, 0, err
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var all []ledger.Product
	for raw := it.Next(); raw != nil; raw = it.Next() {
		p := *raw.(*ledger.Product)
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	lo, hi := store.Page(len(all), f.Offset, f.Limit)
	return all[lo:hi], len(all), nil
}

func (t *tx) Sale(_ context.Context, id string) (ledger.Sale, error) {
	raw, err := t.txn.First(tableSales, "id", id)
	if err != nil {
		return ledger.Sale{}, err
	}
	if raw == nil {
		return ledger.Sale{}, &ledger.NotFoundError{Entity: "sale", ID: id}
	}
	return raw.(*ledger.Sale).Clone(), nil
}

func (t *tx) Sales(ctx context.Context, f store.SaleFilter) ([]ledger.Sale, int, error) {
	all, err := t.SalesBetween(ctx, f.Start, f.End)
	if err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	lo, hi := store.Page(len(all), f.Offset, f.Limit)
	return all[lo:hi], len(all), nil
}

func (t *tx) SalesBetween(_ context.Context, start, end time.Time) ([]ledger.Sale, error) {
	var (
		it  memdb.ResultIterator
		err error
	)
	if start.IsZero() {
		it, err = t.txn.Get(tableSales, "created")
	} else {
		it, err = t.txn.LowerBound(tableSales, "created", start)
	}
	if err != nil {
		return nil, err
	}
	var out []ledger.Sale
	for raw := it.Next(); raw != nil; raw = it.Next() {
		s := raw.(*ledger.Sale)
		if !end.IsZero() && !s.CreatedAt.Before(end) {
			break
		}
		out = append(out, s.Clone())
	}
	return out, nil
}

func (t *tx) ActiveAlert(_ context.Context, productID string) (ledger.StockAlert, bool, error) {
	raw, err := t.txn.First(tableAlerts, "product_status", productID, string(ledger.AlertActive))
	if err != nil {
		return ledger.StockAlert{}, false, err
	}
	if raw == nil {
		return ledger.StockAlert{}, false, nil
	}
	return *raw.(*ledger.StockAlert), true, nil
}

func (t *tx) Alerts(_ context.Context, status ledger.AlertStatus) ([]ledger.StockAlert, error) {
	var (
		it  memdb.ResultIterator
		err error
	)
	if status == "" {
		it, err = t.txn.Get(tableAlerts, "id")
	} else {
		it, err = t.txn.Get(tableAlerts, "status", string(status))
	}
	if err != nil {
		return nil, err
	}
	var out []ledger.StockAlert
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*ledger.StockAlert))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// memdb is single-writer, so a plain read already excludes other writers.
func (t *tx) LockProduct(ctx context.Context, id string) (ledger.Product, error) {
	return t.Product(ctx, id)
}

func (t *tx) InsertProduct(_ context.Context, p ledger.Product) error {
	// memdb does not reject duplicate keys on unique indexes; check by hand.
	if raw, err := t.txn.First(tableProducts, "sku", p.SKU); err != nil {
		return err
	} else if raw != nil {
		return &ledger.DuplicateSKUError{SKU: p.SKU}
	}
	if raw, err := t.txn.First(tableProducts, "id", p.ID); err != nil {
		return err
	} else if raw != nil {
		return fmt.Errorf("product id %s: %w", p.ID, store.ErrConflict)
	}
	cp := p
	return t.txn.Insert(tableProducts, &cp)
}

func (t *tx) UpdateProduct(_ context.Context, p ledger.Product, expectedVersion int64) error {
	raw, err := t.txn.First(tableProducts, "id", p.ID)
	if err != nil {
		return err
	}
	if raw == nil {
		return &ledger.NotFoundError{Entity: "product", ID: p.ID}
	}
	cur := raw.(*ledger.Product)
	if cur.Version != expectedVersion {
		return store.ErrConflict
	}
	if cur.SKU != p.SKU {
		other, err := t.txn.First(tableProducts, "sku", p.SKU)
		if err != nil {
			return err
		}
		if other != nil {
			return &ledger.DuplicateSKUError{SKU: p.SKU}
		}
	}
	cp := p
	return t.txn.Insert(tableProducts, &cp)
}

func (t *tx) DeleteProduct(_ context.Context, id string) error {
	raw, err := t.txn.First(tableProducts, "id", id)
	if err != nil {
		return err
	}
	if raw == nil {
		return &ledger.NotFoundError{Entity: "product", ID: id}
	}
	return t.txn.Delete(tableProducts, raw)
}

func (t *tx) InsertSale(_ context.Context, s ledger.Sale) error {
	if raw, err := t.txn.First(tableSales, "invoice", s.InvoiceNumber); err != nil {
		return err
	} else if raw != nil {
		return &ledger.DuplicateInvoiceError{InvoiceNumber: s.InvoiceNumber}
	}
	cp := s.Clone()
	return t.txn.Insert(tableSales, &cp)
}

func (t *tx) InsertAlert(_ context.Context, a ledger.StockAlert) error {
	if a.Status == ledger.AlertActive {
		raw, err := t.txn.First(tableAlerts, "product_status", a.ProductID, string(ledger.AlertActive))
		if err != nil {
			return err
		}
		if raw != nil {
			return fmt.Errorf("active alert for product %s: %w", a.ProductID, store.ErrConflict)
		}
	}
	cp := a
	return t.txn.Insert(tableAlerts, &cp)
}

func (t *tx) UpdateAlert(_ context.Context, a ledger.StockAlert) error {
	raw, err := t.txn.First(tableAlerts, "id", a.ID)
	if err != nil {
		return err
	}
	if raw == nil {
		return &ledger.NotFoundError{Entity: "alert", ID: a.ID}
	}
	cp := a
	return t.txn.Insert(tableAlerts, &cp)
}
