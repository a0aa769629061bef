// Package reports aggregates committed sales. It only ever reads.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
)

// ProfitPolicy estimates the profit of one sale line. Only the flat margin
// ships until products carry a cost basis.
type ProfitPolicy interface {
	Profit(line ledger.SaleLine) decimal.Decimal
}

type FlatMargin struct {
	Fraction decimal.Decimal
}

func (m FlatMargin) Profit(line ledger.SaleLine) decimal.Decimal {
	return line.Total.Mul(m.Fraction)
}

// Cache holds summaries of closed days. Implementations must be safe to miss.
type Cache interface {
	Get(ctx context.Context, key string) (Summary, bool)
	Set(ctx context.Context, key string, s Summary)
}

type Summary struct {
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalTax         decimal.Decimal `json:"total_tax"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	TransactionCount int             `json:"transaction_count"`
	ItemsSold        int             `json:"items_sold"`
}

type DailyReport struct {
	Date string `json:"date"`
	Summary
	Sales []ledger.Sale `json:"sales"`
}

type DayTotals struct {
	Sales decimal.Decimal `json:"sales"`
	Count int             `json:"count"`
}

type MonthlyReport struct {
	Month int `json:"month"`
	Year  int `json:"year"`
	Summary
	Days map[int]DayTotals `json:"daily_data"`
}

type ProductSales struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	TotalQuantity int             `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

type Stats struct {
	TodayTotal  decimal.Decimal `json:"today_total"`
	TodayCount  int             `json:"today_count"`
	TopProducts []ProductSales  `json:"top_products"`
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
}

type Aggregator struct {
	store  store.Store
	profit ProfitPolicy
	cache  Cache
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewAggregator(st store.Store, profit ProfitPolicy, cache Cache, log *zap.Logger, opts Options) *Aggregator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if profit == nil {
		profit = FlatMargin{Fraction: decimal.RequireFromString("0.30")}
	}
	return &Aggregator{store: st, profit: profit, cache: cache, log: log, loc: opts.Location, now: opts.Now}
}

// ReportForRange summarizes sales created in [start, end). An empty range is
// a zero summary, not an error.
func (a *Aggregator) ReportForRange(ctx context.Context, start, end time.Time) (Summary, error) {
	sales, err := a.salesBetween(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}
	return a.summarize(start, end, sales), nil
}

func (a *Aggregator) salesBetween(ctx context.Context, start, end time.Time) ([]ledger.Sale, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, ledger.Invalid("end", "must not be before start")
	}
	var sales []ledger.Sale
	err := a.store.View(ctx, func(tx store.ReadTx) error {
		var err error
		sales, err = tx.SalesBetween(ctx, start, end)
		return err
	})
	if sales == nil {
		sales = []ledger.Sale{}
	}
	return sales, err
}

func (a *Aggregator) summarize(start, end time.Time, sales []ledger.Sale) Summary {
	s := Summary{
		Start:       start,
		End:         end,
		TotalSales:  decimal.Zero,
		TotalTax:    decimal.Zero,
		TotalProfit: decimal.Zero,
	}
	for _, sale := range sales {
		s.TotalSales = s.TotalSales.Add(sale.Total)
		s.TotalTax = s.TotalTax.Add(sale.Tax)
		s.TransactionCount++
		for _, l := range sale.Lines {
			s.TotalProfit = s.TotalProfit.Add(a.profit.Profit(l))
			s.ItemsSold += l.Quantity
		}
	}
	s.TotalProfit = s.TotalProfit.Round(2)
	return s
}

// DayBounds returns [00:00, next 00:00) of the calendar day containing t in
// the aggregator's location.
func (a *Aggregator) DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.In(a.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay reads YYYY-MM-DD in the aggregator's location; empty means today.
func (a *Aggregator) ParseDay(s string) (time.Time, error) {
	if s == "" {
		return a.now().In(a.loc), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, a.loc)
	if err != nil {
		return time.Time{}, ledger.Invalid("date", "must be formatted YYYY-MM-DD")
	}
	return d, nil
}

func (a *Aggregator) Daily(ctx context.Context, day time.Time) (DailyReport, error) {
	start, end := a.DayBounds(day)
	sales, err := a.salesBetween(ctx, start, end)
	if err != nil {
		return DailyReport{}, err
	}
	return DailyReport{
		Date:    start.Format(time.DateOnly),
		Summary: a.summarize(start, end, sales),
		Sales:   sales,
	}, nil
}

// DailySummary is Daily without the sale list; closed days are served from
// the cache since sales are immutable once their day has passed.
func (a *Aggregator) DailySummary(ctx context.Context, day time.Time) (Summary, error) {
	start, end := a.DayBounds(day)
	closed := !a.now().Before(end)
	key := "daily:" + start.Format(time.DateOnly) + ":" + a.loc.String()
	if closed && a.cache != nil {
		if s, ok := a.cache.Get(ctx, key); ok {
			return s, nil
		}
	}
	s, err := a.ReportForRange(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}
	if closed && a.cache != nil {
		a.cache.Set(ctx, key, s)
	}
	return s, nil
}

func (a *Aggregator) Monthly(ctx context.Context, year int, month time.Month) (MonthlyReport, error) {
	if month < time.January || month > time.December {
		return MonthlyReport{}, ledger.Invalid("month", "must be between 1 and 12")
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, a.loc)
	end := start.AddDate(0, 1, 0)
	sales, err := a.salesBetween(ctx, start, end)
	if err != nil {
		return MonthlyReport{}, err
	}
	days := make(map[int]DayTotals)
	for _, s := range sales {
		d := s.CreatedAt.In(a.loc).Day()
		t := days[d]
		t.Sales = t.Sales.Add(s.Total)
		t.Count++
		days[d] = t
	}
	return MonthlyReport{
		Month:   int(month),
		Year:    year,
		Summary: a.summarize(start, end, sales),
		Days:    days,
	}, nil
}

// TopProducts ranks products by units sold in [start, end), revenue breaking ties.
func (a *Aggregator) TopProducts(ctx context.Context, start, end time.Time, n int) ([]ProductSales, error) {
	sales, err := a.salesBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return topProducts(sales, n), nil
}

func topProducts(sales []ledger.Sale, n int) []ProductSales {
	by := map[string]*ProductSales{}
	for _, s := range sales {
		for _, l := range s.Lines {
			ps, ok := by[l.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: l.ProductID, ProductName: l.ProductName, TotalRevenue: decimal.Zero}
				by[l.ProductID] = ps
			}
			ps.TotalQuantity += l.Quantity
			ps.TotalRevenue = ps.TotalRevenue.Add(l.Total)
		}
	}
	out := make([]ProductSales, 0, len(by))
	for _, ps := range by {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalQuantity != out[j].TotalQuantity {
			return out[i].TotalQuantity > out[j].TotalQuantity
		}
		if c := out[i].TotalRevenue.Cmp(out[j].TotalRevenue); c != 0 {
			return c > 0
		}
		return out[i].ProductID < out[j].ProductID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Stats is the dashboard view: today's takings and the all-time top five.
func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	start, end := a.DayBounds(a.now())
	today, err := a.salesBetween(ctx, start, end)
	if err != nil {
		return Stats{}, err
	}
	all, err := a.salesBetween(ctx, time.Time{}, time.Time{})
	if err != nil {
		return Stats{}, err
	}
	sum := a.summarize(start, end, today)
	return Stats{
		TodayTotal:  sum.TotalSales,
		TodayCount:  sum.TransactionCount,
		TopProducts: topProducts(all, 5),
	}, nil
}
