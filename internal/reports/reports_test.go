package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
	"github.com/ariefcatur/go-pos-ledger/internal/store/memstore"
)

var day = time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

type mapCache struct {
	m    map[string]Summary
	gets int
}

func (c *mapCache) Get(_ context.Context, key string) (Summary, bool) {
	c.gets++
	s, ok := c.m[key]
	return s, ok
}

func (c *mapCache) Set(_ context.Context, key string, s Summary) { c.m[key] = s }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func saleAt(id string, at time.Time, lines ...ledger.SaleLine) ledger.Sale {
	sub := ledger.Subtotal(lines)
	return ledger.Sale{
		ID: id, InvoiceNumber: "INV-" + id, Lines: lines,
		Subtotal: sub, Tax: decimal.Zero, Total: sub,
		PaymentMethod: ledger.PaymentCard, CashierID: "c1", CreatedAt: at,
	}
}

func seed(t *testing.T, sales ...ledger.Sale) store.Store {
	t.Helper()
	st, err := memstore.New()
	require.NoError(t, err)
	require.NoError(t, st.Update(context.Background(), func(tx store.Tx) error {
		for _, s := range sales {
			if err := tx.InsertSale(context.Background(), s); err != nil {
				return err
			}
		}
		return nil
	}))
	return st
}

func newAggregator(st store.Store, cache Cache, now time.Time) *Aggregator {
	return NewAggregator(st, FlatMargin{Fraction: d("0.30")}, cache, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})
}

func TestReportForRange(t *testing.T) {
	st := seed(t,
		saleAt("a", day.Add(9*time.Hour), ledger.NewSaleLine("p1", "Pen", d("25"), 4)),
		saleAt("b", day.Add(15*time.Hour), ledger.NewSaleLine("p2", "Ink", d("125"), 2)),
		saleAt("c", day.Add(24*time.Hour), ledger.NewSaleLine("p1", "Pen", d("1"), 1)),
	)
	agg := newAggregator(st, nil, day.Add(48*time.Hour))

	s, err := agg.ReportForRange(context.Background(), day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, s.TotalSales.Equal(d("350")), s.TotalSales.String())
	assert.True(t, s.TotalProfit.Equal(d("105")), s.TotalProfit.String())
	assert.Equal(t, 2, s.TransactionCount)
	assert.Equal(t, 6, s.ItemsSold)
}

func TestReportForEmptyRange(t *testing.T) {
	agg := newAggregator(seed(t), nil, day)

	s, err := agg.ReportForRange(context.Background(), day, day.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, s.TotalSales.IsZero())
	assert.True(t, s.TotalProfit.IsZero())
	assert.Zero(t, s.TransactionCount)

	_, err = agg.ReportForRange(context.Background(), day.Add(time.Hour), day)
	var ve *ledger.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDaily(t *testing.T) {
	st := seed(t,
		saleAt("a", day.Add(-time.Second), ledger.NewSaleLine("p1", "Pen", d("1"), 1)),
		saleAt("b", day, ledger.NewSaleLine("p1", "Pen", d("2"), 1)),
		saleAt("c", day.Add(23*time.Hour), ledger.NewSaleLine("p1", "Pen", d("3"), 1)),
	)
	agg := newAggregator(st, nil, day.Add(12*time.Hour))

	r, err := agg.Daily(context.Background(), day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", r.Date)
	assert.Len(t, r.Sales, 2)
	assert.True(t, r.TotalSales.Equal(d("5")))
}

func TestDayBoundsFollowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	agg := NewAggregator(seed(t), nil, nil, zap.NewNop(), Options{Location: loc})

	start, end := agg.DayBounds(time.Date(2024, 3, 8, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, loc), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, err := agg.ParseDay("09/03/2024")
	var ve *ledger.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDailySummaryCachesClosedDays(t *testing.T) {
	st := seed(t, saleAt("a", day.Add(time.Hour), ledger.NewSaleLine("p1", "Pen", d("10"), 1)))
	cache := &mapCache{m: map[string]Summary{}}

	open := newAggregator(st, cache, day.Add(2*time.Hour))
	_, err := open.DailySummary(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, cache.m, "today is still open")
	assert.Zero(t, cache.gets)

	closed := newAggregator(st, cache, day.Add(30*time.Hour))
	first, err := closed.DailySummary(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, cache.m, 1)

	for k := range cache.m {
		cache.m[k] = Summary{TransactionCount: 42}
	}
	second, err := closed.DailySummary(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TransactionCount)
	assert.Equal(t, 42, second.TransactionCount, "served from cache")
}

func TestMonthly(t *testing.T) {
	st := seed(t,
		saleAt("a", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), ledger.NewSaleLine("p1", "Pen", d("1"), 1)),
		saleAt("b", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), ledger.NewSaleLine("p1", "Pen", d("2"), 1)),
		saleAt("c", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), ledger.NewSaleLine("p1", "Pen", d("3"), 1)),
		saleAt("e", time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), ledger.NewSaleLine("p1", "Pen", d("4"), 1)),
	)
	agg := newAggregator(st, nil, day)

	r, err := agg.Monthly(context.Background(), 2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, 3, r.TransactionCount)
	assert.True(t, r.TotalSales.Equal(d("9")))
	require.Len(t, r.Days, 2)
	assert.Equal(t, 2, r.Days[1].Count)
	assert.True(t, r.Days[31].Sales.Equal(d("4")))

	_, err = agg.Monthly(context.Background(), 2024, 13)
	var ve *ledger.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTopProductsAndStats(t *testing.T) {
	st := seed(t,
		saleAt("a", day.Add(-48*time.Hour), ledger.NewSaleLine("p1", "Pen", d("1"), 5)),
		saleAt("b", day.Add(time.Hour),
			ledger.NewSaleLine("p2", "Ink", d("3"), 2),
			ledger.NewSaleLine("p3", "Pad", d("2"), 2)),
	)
	agg := newAggregator(st, nil, day.Add(2*time.Hour))

	top, err := agg.TopProducts(context.Background(), time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "p1", top[0].ProductID)
	assert.Equal(t, "p2", top[1].ProductID, "revenue breaks the tie")

	stats, err := agg.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TodayCount)
	assert.True(t, stats.TodayTotal.Equal(d("10")))
	assert.Len(t, stats.TopProducts, 3)
}

func TestExport(t *testing.T) {
	s := saleAt("a", day.Add(time.Hour), ledger.NewSaleLine("p1", "Pen", d("1.5"), 2), ledger.NewSaleLine("p2", "Ink", d("3"), 1))
	agg := newAggregator(seed(t, s), nil, day.Add(2*time.Hour))
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, agg.Export(ctx, &buf, FormatCSV, time.Time{}, time.Time{}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"INV-a", "2024-03-09T01:00:00Z", "c1", "Pen(2);Ink(1)", "6.00", "0.00", "6.00", "card"}, rows[1])

	buf.Reset()
	require.NoError(t, agg.Export(ctx, &buf, FormatJSON, time.Time{}, time.Time{}))
	var doc struct {
		TotalRecords int           `json:"total_records"`
		Sales        []ledger.Sale `json:"sales"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 1, doc.TotalRecords)
	assert.Equal(t, "INV-a", doc.Sales[0].InvoiceNumber)

	_, err = ParseFormat("xml")
	var ve *ledger.ValidationError
	assert.ErrorAs(t, err, &ve)
}
