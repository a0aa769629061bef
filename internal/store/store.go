// Package store is the storage collaborator of the ledger: a transactional
// document store with read, locked read, conditional write and range query
// primitives. Implementations live in memstore and postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
)

// ErrConflict is returned by a conditional write whose precondition no longer
// holds because another writer got there first.
var ErrConflict = errors.New("store: concurrent modification")

type ProductFilter struct {
	Search   string
	Category string
	Offset   int
	Limit    int
}

// SaleFilter bounds are [Start, End); zero values leave that side open.
type SaleFilter struct {
	Start  time.Time
	End    time.Time
	Offset int
	Limit  int
}

type ReadTx interface {
	Product(ctx context.Context, id string) (ledger.Product, error)
	ProductBySKU(ctx context.Context, sku string) (ledger.Product, error)
	// Products returns one page ordered newest first plus the unpaged total.
	Products(ctx context.Context, f ProductFilter) ([]ledger.Product, int, error)

	Sale(ctx context.Context, id string) (ledger.Sale, error)
	// Sales returns one page ordered newest first plus the unpaged total.
	Sales(ctx context.Context, f SaleFilter) ([]ledger.Sale, int, error)
	// SalesBetween returns every sale created in [start, end), oldest first.
	SalesBetween(ctx context.Context, start, end time.Time) ([]ledger.Sale, error)

	ActiveAlert(ctx context.Context, productID string) (ledger.StockAlert, bool, error)
	// Alerts lists alerts newest first; an empty status lists all of them.
	Alerts(ctx context.Context, status ledger.AlertStatus) ([]ledger.StockAlert, error)
}

type Tx interface {
	ReadTx

	// LockProduct reads a product and holds it against concurrent writers
	// until the transaction ends.
	LockProduct(ctx context.Context, id string) (ledger.Product, error)
	InsertProduct(ctx context.Context, p ledger.Product) error
	// UpdateProduct writes p only if the stored version still equals
	// expectedVersion, otherwise ErrConflict.
	UpdateProduct(ctx context.Context, p ledger.Product, expectedVersion int64) error
	DeleteProduct(ctx context.Context, id string) error

	InsertSale(ctx context.Context, s ledger.Sale) error

	InsertAlert(ctx context.Context, a ledger.StockAlert) error
	UpdateAlert(ctx context.Context, a ledger.StockAlert) error

	// AfterCommit registers fn to run once the transaction has committed.
	AfterCommit(fn func())
}

type Store interface {
	View(ctx context.Context, fn func(tx ReadTx) error) error
	// Update runs fn in one atomic transaction; any error rolls back everything.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Page clamps offset and limit against n items.
func Page(n, offset, limit int) (lo, hi int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	hi = n
	if limit > 0 && offset+limit < n {
		hi = offset + limit
	}
	return offset, hi
}
