// Package sales turns a basket of (product, quantity) lines into an immutable
// Sale, reserving stock for all lines as one unit.
package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/events"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

// Stock is the slice of the catalog a sale needs.
type Stock interface {
	Lookup(ctx context.Context, ids []string) (map[string]ledger.Product, error)
	ReserveStock(ctx context.Context, lines []ledger.LineRequest) ([]ledger.Product, error)
	Release(ctx context.Context, lines []ledger.LineRequest) ([]ledger.Product, error)
}

type Options struct {
	InvoiceAttempts int
	// CompensationTimeout bounds how long a failed sale keeps trying to hand
	// its reserved stock back before raising a stock integrity incident.
	CompensationTimeout time.Duration
	Now                 func() time.Time
}

type Processor struct {
	stock    Stock
	store    store.Store
	invoices InvoiceGenerator
	tax      TaxPolicy
	pub      events.Publisher
	log      *zap.Logger
	opts     Options
}

func NewProcessor(stock Stock, st store.Store, invoices InvoiceGenerator, tax TaxPolicy, pub events.Publisher, log *zap.Logger, opts Options) *Processor {
	if opts.InvoiceAttempts <= 0 {
		opts.InvoiceAttempts = 5
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if tax == nil {
		tax = FlatTax{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Processor{stock: stock, store: st, invoices: invoices, tax: tax, pub: pub, log: log, opts: opts}
}

func (p *Processor) CreateSale(ctx context.Context, req ledger.SaleRequest) (ledger.Sale, error) {
	if err := ledger.ValidateSaleRequest(req); err != nil {
		return ledger.Sale{}, err
	}

	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := p.stock.Lookup(ctx, ids)
	if err != nil {
		return ledger.Sale{}, err
	}

	// prices are fixed here; later catalog edits never reach this sale
	lines := make([]ledger.SaleLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		pr := products[l.ProductID]
		lines = append(lines, ledger.NewSaleLine(pr.ID, pr.Name, pr.Price, l.Quantity))
	}

	if _, err := p.stock.ReserveStock(ctx, req.Lines); err != nil {
		return ledger.Sale{}, err
	}

	subtotal := ledger.Subtotal(lines)
	tax := p.tax.Tax(subtotal)
	sale := ledger.Sale{
		ID:            uuid.NewString(),
		Lines:         lines,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         subtotal.Add(tax),
		PaymentMethod: req.PaymentMethod,
		CashierID:     req.CashierID,
		Notes:         req.Notes,
		CreatedAt:     p.opts.Now().UTC(),
	}

	if err := p.persist(ctx, &sale); err != nil {
		p.compensate(ctx, sale.ID, req.Lines, err)
		return ledger.Sale{}, err
	}

	p.log.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("invoice", sale.InvoiceNumber),
		zap.String("cashier_id", sale.CashierID),
		zap.Stringer("total", sale.Total),
		zap.Int("lines", len(sale.Lines)))
	p.pub.SaleRecorded(context.WithoutCancel(ctx), sale)
	return sale, nil
}

// persist allocates an invoice number and stores the sale, drawing a fresh
// number whenever the store reports the previous one as taken.
func (p *Processor) persist(ctx context.Context, sale *ledger.Sale) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(p.opts.InvoiceAttempts-1)), ctx)
	var lastDup error
	err := backoff.Retry(func() error {
		inv, err := p.invoices.Next(ctx, sale.CreatedAt)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("allocate invoice: %w", err))
		}
		sale.InvoiceNumber = inv
		err = p.store.Update(ctx, func(tx store.Tx) error {
			return tx.InsertSale(ctx, *sale)
		})
		var dup *ledger.DuplicateInvoiceError
		if errors.As(err, &dup) {
			lastDup = err
			p.log.Debug("invoice number taken, drawing another", zap.String("invoice", inv))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
	if err != nil {
		var dup *ledger.DuplicateInvoiceError
		if errors.As(err, &dup) {
			return ledger.Transient("allocate invoice", lastDup)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ledger.Transient("persist sale", err)
		}
		return err
	}
	return nil
}

// compensate hands reserved stock back after a failed persist. It runs on a
// context detached from the caller, since a timed-out request is exactly the
// case that needs it, and keeps retrying until CompensationTimeout.
func (p *Processor) compensate(ctx context.Context, saleID string, lines []ledger.LineRequest, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CompensationTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		_, err := p.stock.Release(cctx, lines)
		var nf *ledger.NotFoundError
		var ve *ledger.ValidationError
		if errors.As(err, &nf) || errors.As(err, &ve) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, cctx))

	if err == nil {
		p.log.Warn("sale failed after reservation, stock restored",
			zap.String("sale_id", saleID), zap.Error(cause))
		return
	}
	fields := []zap.Field{
		zap.String("incident", "stock_integrity"),
		zap.String("sale_id", saleID),
		zap.NamedError("cause", cause),
		zap.Error(err),
	}
	for i, l := range lines {
		fields = append(fields, zap.Dict(fmt.Sprintf("line_%d", i),
			zap.String("product_id", l.ProductID), zap.Int("quantity", l.Quantity)))
	}
	p.log.Error("could not restore reserved stock", fields...)
}

func (p *Processor) Get(ctx context.Context, id string) (ledger.Sale, error) {
	var s ledger.Sale
	err := p.store.View(ctx, func(tx store.ReadTx) error {
		var err error
		s, err = tx.Sale(ctx, id)
		return err
	})
	return s, err
}

type ListQuery struct {
	Start time.Time
	End   time.Time
	Page  int
	Limit int
}

type SalePage struct {
	Sales      []ledger.Sale     `json:"sales"`
	Pagination ledger.Pagination `json:"pagination"`
}

func (p *Processor) List(ctx context.Context, q ListQuery) (SalePage, error) {
	pg := ledger.NewPagination(0, q.Page, q.Limit)
	out := SalePage{Sales: []ledger.Sale{}}
	err := p.store.View(ctx, func(tx store.ReadTx) error {
		ss, total, err := tx.Sales(ctx, store.SaleFilter{Start: q.Start, End: q.End, Offset: pg.Offset(), Limit: pg.Limit})
		if err != nil {
			return err
		}
		if ss != nil {
			out.Sales = ss
		}
		out.Pagination = ledger.NewPagination(total, pg.Page, pg.Limit)
		return nil
	})
	return out, err
}
