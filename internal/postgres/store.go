package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Store implements store.Store on Postgres. Row locks come from
// SELECT ... FOR UPDATE, so writers touching disjoint products never block.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) View(ctx context.Context, fn func(tx store.ReadTx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify("view", err)
	}
	return classify("commit", tx.Commit(ctx))
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t := &pgTx{tx: tx}
	if err := fn(t); err != nil {
		return classify("update", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	for _, h := range t.after {
		h()
	}
	return nil
}

// classify turns retryable Postgres failures into ledger.TransientError and
// leaves domain errors untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return ledger.Transient(op, err)
		}
	}
	return err
}

func uniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr, true
	}
	return nil, false
}

type pgTx struct {
	tx    pgx.Tx
	after []func()
}

func (t *pgTx) AfterCommit(fn func()) { t.after = append(t.after, fn) }

const productCols = `id, name, sku, category, description, barcode, price, quantity,
	low_stock_threshold, image_url, created_by, version, created_at, updated_at`

func scanProduct(row pgx.Row) (ledger.Product, error) {
	var p ledger.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.Description, &p.Barcode, &p.Price, &p.Quantity,
		&p.LowStockThreshold, &p.ImageURL, &p.CreatedBy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (t *pgTx) productWhere(ctx context.Context, id, query string, args ...any) (ledger.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Product{}, &ledger.NotFoundError{Entity: "product", ID: id}
	}
	return p, err
}

func (t *pgTx) Product(ctx context.Context, id string) (ledger.Product, error) {
	return t.productWhere(ctx, id, `SELECT `+productCols+` FROM products WHERE id=$1`, id)
}

func (t *pgTx) ProductBySKU(ctx context.Context, sku string) (ledger.Product, error) {
	return t.productWhere(ctx, sku, `SELECT `+productCols+` FROM products WHERE sku=$1`, sku)
}

func (t *pgTx) LockProduct(ctx context.Context, id string) (ledger.Product, error) {
	return t.productWhere(ctx, id, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id)
}

const productFilter = `
	WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
	  AND ($2 = '' OR category = $2)`

func (t *pgTx) Products(ctx context.Context, f store.ProductFilter) ([]ledger.Product, int, error) {
	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM products`+productFilter, f.Search, f.Category).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products`+productFilter+`
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		f.Search, f.Category, limitArg(f.Limit), max(f.Offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ledger.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (t *pgTx) InsertProduct(ctx context.Context, p ledger.Product) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products(`+productCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.Name, p.SKU, p.Category, p.Description, p.Barcode, p.Price.String(), p.Quantity,
		p.LowStockThreshold, p.ImageURL, p.CreatedBy, p.Version, p.CreatedAt, p.UpdatedAt)
	if pgErr, ok := uniqueViolation(err); ok {
		if pgErr.ConstraintName == "products_sku_key" {
			return &ledger.DuplicateSKUError{SKU: p.SKU}
		}
		return fmt.Errorf("product id %s: %w", p.ID, store.ErrConflict)
	}
	return err
}

func (t *pgTx) UpdateProduct(ctx context.Context, p ledger.Product, expectedVersion int64) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET name=$3, sku=$4, category=$5, description=$6, barcode=$7, price=$8,
			quantity=$9, low_stock_threshold=$10, image_url=$11, version=$12, updated_at=$13
		WHERE id=$1 AND version=$2`,
		p.ID, expectedVersion, p.Name, p.SKU, p.Category, p.Description, p.Barcode, p.Price.String(),
		p.Quantity, p.LowStockThreshold, p.ImageURL, p.Version, p.UpdatedAt)
	if _, ok := uniqueViolation(err); ok {
		return &ledger.DuplicateSKUError{SKU: p.SKU}
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, p.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return &ledger.NotFoundError{Entity: "product", ID: p.ID}
	}
	return store.ErrConflict
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &ledger.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}

const saleCols = `id, invoice_number, subtotal, tax, total, payment_method, cashier_id, notes, created_at`

const saleRange = `
	WHERE ($1::timestamptz IS NULL OR created_at >= $1)
	  AND ($2::timestamptz IS NULL OR created_at < $2)`

func (t *pgTx) Sale(ctx context.Context, id string) (ledger.Sale, error) {
	sales, err := t.querySales(ctx, `SELECT `+saleCols+` FROM sales WHERE id=$1`, id)
	if err != nil {
		return ledger.Sale{}, err
	}
	if len(sales) == 0 {
		return ledger.Sale{}, &ledger.NotFoundError{Entity: "sale", ID: id}
	}
	return sales[0], nil
}

func (t *pgTx) Sales(ctx context.Context, f store.SaleFilter) ([]ledger.Sale, int, error) {
	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM sales`+saleRange,
		timeArg(f.Start), timeArg(f.End)).Scan(&total); err != nil {
		return nil, 0, err
	}
	sales, err := t.querySales(ctx, `SELECT `+saleCols+` FROM sales`+saleRange+`
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		timeArg(f.Start), timeArg(f.End), limitArg(f.Limit), max(f.Offset, 0))
	return sales, total, err
}

func (t *pgTx) SalesBetween(ctx context.Context, start, end time.Time) ([]ledger.Sale, error) {
	return t.querySales(ctx, `SELECT `+saleCols+` FROM sales`+saleRange+` ORDER BY created_at, id`,
		timeArg(start), timeArg(end))
}

// querySales loads sale headers, then all their lines in one round trip.
func (t *pgTx) querySales(ctx context.Context, query string, args ...any) ([]ledger.Sale, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		out []ledger.Sale
		ids []string
	)
	for rows.Next() {
		var s ledger.Sale
		var pm string
		if err := rows.Scan(&s.ID, &s.InvoiceNumber, &s.Subtotal, &s.Tax, &s.Total, &pm,
			&s.CashierID, &s.Notes, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		s.PaymentMethod = ledger.PaymentMethod(pm)
		out = append(out, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	lrows, err := t.tx.Query(ctx, `
		SELECT sale_id, product_id, product_name, unit_price, quantity, total
		FROM sale_lines WHERE sale_id = ANY($1) ORDER BY sale_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer lrows.Close()
	lines := make(map[string][]ledger.SaleLine, len(ids))
	for lrows.Next() {
		var saleID string
		var l ledger.SaleLine
		if err := lrows.Scan(&saleID, &l.ProductID, &l.ProductName, &l.Price, &l.Quantity, &l.Total); err != nil {
			return nil, err
		}
		lines[saleID] = append(lines[saleID], l)
	}
	if err := lrows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (t *pgTx) InsertSale(ctx context.Context, s ledger.Sale) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales(`+saleCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.InvoiceNumber, s.Subtotal.String(), s.Tax.String(), s.Total.String(),
		string(s.PaymentMethod), s.CashierID, s.Notes, s.CreatedAt)
	if pgErr, ok := uniqueViolation(err); ok {
		if pgErr.ConstraintName == "sales_invoice_number_key" {
			return &ledger.DuplicateInvoiceError{InvoiceNumber: s.InvoiceNumber}
		}
		return fmt.Errorf("sale id %s: %w", s.ID, store.ErrConflict)
	}
	if err != nil {
		return err
	}

	b := &pgx.Batch{}
	for i, l := range s.Lines {
		b.Queue(`INSERT INTO sale_lines(sale_id, line_no, product_id, product_name, unit_price, quantity, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			s.ID, i, l.ProductID, l.ProductName, l.Price.String(), l.Quantity, l.Total.String())
	}
	return t.tx.SendBatch(ctx, b).Close()
}

const alertCols = `id, product_id, product_name, current_quantity, threshold, status, created_at, resolved_at`

func scanAlert(row pgx.Row) (ledger.StockAlert, error) {
	var a ledger.StockAlert
	var status string
	err := row.Scan(&a.ID, &a.ProductID, &a.ProductName, &a.CurrentQuantity, &a.Threshold, &status, &a.CreatedAt, &a.ResolvedAt)
	a.Status = ledger.AlertStatus(status)
	return a, err
}

func (t *pgTx) ActiveAlert(ctx context.Context, productID string) (ledger.StockAlert, bool, error) {
	a, err := scanAlert(t.tx.QueryRow(ctx,
		`SELECT `+alertCols+` FROM stock_alerts WHERE product_id=$1 AND status='active'`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.StockAlert{}, false, nil
	}
	if err != nil {
		return ledger.StockAlert{}, false, err
	}
	return a, true, nil
}

func (t *pgTx) Alerts(ctx context.Context, status ledger.AlertStatus) ([]ledger.StockAlert, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+alertCols+` FROM stock_alerts
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC, id DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.StockAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAlert runs under a savepoint so that losing the one-active-alert race
// reports ErrConflict without aborting the caller's transaction.
func (t *pgTx) InsertAlert(ctx context.Context, a ledger.StockAlert) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = sp.Exec(ctx, `INSERT INTO stock_alerts(`+alertCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.ProductID, a.ProductName, a.CurrentQuantity, a.Threshold, string(a.Status), a.CreatedAt, a.ResolvedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		if _, ok := uniqueViolation(err); ok {
			return fmt.Errorf("active alert for product %s: %w", a.ProductID, store.ErrConflict)
		}
		return err
	}
	return sp.Commit(ctx)
}

func (t *pgTx) UpdateAlert(ctx context.Context, a ledger.StockAlert) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE stock_alerts SET product_name=$2, current_quantity=$3, threshold=$4, status=$5, resolved_at=$6
		WHERE id=$1`,
		a.ID, a.ProductName, a.CurrentQuantity, a.Threshold, string(a.Status), a.ResolvedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &ledger.NotFoundError{Entity: "alert", ID: a.ID}
	}
	return nil
}

// limitArg maps "no limit" to SQL NULL, which LIMIT treats as unbounded.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ store.Store = (*Store)(nil)
