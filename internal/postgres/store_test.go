package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-pos-ledger/internal/config"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	c, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	mg, err := NewMigrator(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mg.Up())
	v, dirty, err := mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
	require.NoError(t, mg.Close())

	pool, err := Connect(ctx, config.DatabaseConfig{DSN: dsn, MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func product(id, sku string, qty int) ledger.Product {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return ledger.Product{
		ID: id, Name: "Item " + sku, SKU: sku, Category: "general",
		Price: decimal.RequireFromString("12.50"), Quantity: qty, LowStockThreshold: 10,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
}

func TestStore(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		if err := tx.InsertProduct(ctx, product("p1", "SKU-1", 20)); err != nil {
			return err
		}
		return tx.InsertProduct(ctx, product("p2", "SKU-2", 5))
	}))

	t.Run("duplicate sku", func(t *testing.T) {
		err := st.Update(ctx, func(tx store.Tx) error {
			return tx.InsertProduct(ctx, product("p3", "SKU-1", 1))
		})
		var dup *ledger.DuplicateSKUError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "SKU-1", dup.SKU)
	})

	t.Run("versioned update", func(t *testing.T) {
		err := st.Update(ctx, func(tx store.Tx) error {
			p, err := tx.LockProduct(ctx, "p1")
			if err != nil {
				return err
			}
			assert.True(t, p.Price.Equal(decimal.RequireFromString("12.50")))
			p.Quantity = 18
			p.Version = 2
			return tx.UpdateProduct(ctx, p, 1)
		})
		require.NoError(t, err)

		err = st.Update(ctx, func(tx store.Tx) error {
			p := product("p1", "SKU-1", 0)
			return tx.UpdateProduct(ctx, p, 1)
		})
		assert.ErrorIs(t, err, store.ErrConflict)

		err = st.Update(ctx, func(tx store.Tx) error {
			return tx.UpdateProduct(ctx, product("nope", "SKU-X", 0), 1)
		})
		var nf *ledger.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("products filter and paging", func(t *testing.T) {
		_ = st.View(ctx, func(tx store.ReadTx) error {
			ps, total, err := tx.Products(ctx, store.ProductFilter{Search: "sku-2"})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
			require.Len(t, ps, 1)
			assert.Equal(t, "p2", ps[0].ID)

			ps, total, err = tx.Products(ctx, store.ProductFilter{Limit: 1, Offset: 1})
			require.NoError(t, err)
			assert.Equal(t, 2, total)
			assert.Len(t, ps, 1)
			return nil
		})
	})

	t.Run("sales with lines and invoice uniqueness", func(t *testing.T) {
		at := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
		line := ledger.NewSaleLine("p1", "Item SKU-1", decimal.RequireFromString("12.50"), 2)
		sale := ledger.Sale{
			ID: "s1", InvoiceNumber: "INV-1", Lines: []ledger.SaleLine{line},
			Subtotal: line.Total, Tax: decimal.Zero, Total: line.Total,
			PaymentMethod: ledger.PaymentCash, CashierID: "u1", CreatedAt: at,
		}
		require.NoError(t, st.Update(ctx, func(tx store.Tx) error { return tx.InsertSale(ctx, sale) }))

		dupe := sale
		dupe.ID = "s2"
		err := st.Update(ctx, func(tx store.Tx) error { return tx.InsertSale(ctx, dupe) })
		var di *ledger.DuplicateInvoiceError
		require.ErrorAs(t, err, &di)

		_ = st.View(ctx, func(tx store.ReadTx) error {
			got, err := tx.Sale(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got.Lines, 1)
			assert.True(t, got.Total.Equal(decimal.RequireFromString("25")))
			assert.Equal(t, 2, got.Lines[0].Quantity)

			in, err := tx.SalesBetween(ctx, at, at.Add(time.Hour))
			require.NoError(t, err)
			assert.Len(t, in, 1)
			out, err := tx.SalesBetween(ctx, at.Add(time.Hour), at.Add(2*time.Hour))
			require.NoError(t, err)
			assert.Empty(t, out)

			// end is exclusive
			edge, err := tx.SalesBetween(ctx, at.Add(-time.Hour), at)
			require.NoError(t, err)
			assert.Empty(t, edge)
			return nil
		})
	})

	t.Run("one active alert per product", func(t *testing.T) {
		a := ledger.StockAlert{ID: "a1", ProductID: "p2", ProductName: "Item SKU-2", CurrentQuantity: 5,
			Threshold: 10, Status: ledger.AlertActive, CreatedAt: time.Now().UTC()}
		require.NoError(t, st.Update(ctx, func(tx store.Tx) error { return tx.InsertAlert(ctx, a) }))

		err := st.Update(ctx, func(tx store.Tx) error {
			b := a
			b.ID = "a2"
			err := tx.InsertAlert(ctx, b)
			require.ErrorIs(t, err, store.ErrConflict)
			// the transaction is still usable after the savepoint rollback
			_, ok, err := tx.ActiveAlert(ctx, "p2")
			require.NoError(t, err)
			assert.True(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("after commit hooks", func(t *testing.T) {
		ran := false
		require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
			tx.AfterCommit(func() { ran = true })
			return nil
		}))
		assert.True(t, ran)

		ran = false
		_ = st.Update(ctx, func(tx store.Tx) error {
			tx.AfterCommit(func() { ran = true })
			return errors.New("boom")
		})
		assert.False(t, ran)
	})

	t.Run("row locks serialize concurrent decrements", func(t *testing.T) {
		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				return st.Update(ctx, func(tx store.Tx) error {
					p, err := tx.LockProduct(ctx, "p2")
					if err != nil {
						return err
					}
					if p.Quantity == 0 {
						return nil
					}
					v := p.Version
					p.Quantity--
					p.Version++
					return tx.UpdateProduct(ctx, p, v)
				})
			})
		}
		require.NoError(t, g.Wait())
		_ = st.View(ctx, func(tx store.ReadTx) error {
			p, err := tx.Product(ctx, "p2")
			require.NoError(t, err)
			assert.Equal(t, 0, p.Quantity)
			return nil
		})
	})

	t.Run("deleting a sold product keeps the sale", func(t *testing.T) {
		sold := product("p9", "SKU-9", 4)
		sold.Price = decimal.RequireFromString("1.25")
		line := ledger.NewSaleLine(sold.ID, sold.Name, sold.Price, 3)
		sale := ledger.Sale{
			ID: "s9", InvoiceNumber: "INV-9", Lines: []ledger.SaleLine{line},
			Subtotal: line.Total, Tax: decimal.Zero, Total: line.Total,
			PaymentMethod: ledger.PaymentCard, CashierID: "u1", CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
			if err := tx.InsertProduct(ctx, sold); err != nil {
				return err
			}
			return tx.InsertSale(ctx, sale)
		}))
		require.NoError(t, st.Update(ctx, func(tx store.Tx) error { return tx.DeleteProduct(ctx, "p9") }))

		_ = st.View(ctx, func(tx store.ReadTx) error {
			_, err := tx.Product(ctx, "p9")
			var nf *ledger.NotFoundError
			assert.ErrorAs(t, err, &nf)

			got, err := tx.Sale(ctx, "s9")
			require.NoError(t, err)
			require.Len(t, got.Lines, 1)
			l := got.Lines[0]
			assert.Equal(t, "Item SKU-9", l.ProductName)
			assert.True(t, l.Price.Equal(decimal.RequireFromString("1.25")), l.Price.String())
			assert.True(t, l.Total.Equal(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))), l.Total.String())
			assert.True(t, got.Total.Equal(sale.Total), got.Total.String())
			return nil
		})
	})
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://x", migrateURL("pgx5://x"))
}
