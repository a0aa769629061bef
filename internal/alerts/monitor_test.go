package alerts

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-pos-ledger/internal/catalog"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/store"
	"github.com/ariefcatur/go-pos-ledger/internal/store/memstore"
)

type capture struct {
	mu       sync.Mutex
	raised   []ledger.StockAlert
	resolved []ledger.StockAlert
}

func (c *capture) SaleRecorded(context.Context, ledger.Sale) {}

func (c *capture) AlertRaised(_ context.Context, a ledger.StockAlert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raised = append(c.raised, a)
}

func (c *capture) AlertResolved(_ context.Context, a ledger.StockAlert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = append(c.resolved, a)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		qty       int
		threshold int
		deleted   bool
		active    bool
		want      Action
	}{
		{"drops below", 9, 10, false, false, Raise},
		{"already low", 0, 10, false, true, NoOp},
		{"at threshold is normal", 10, 10, false, false, NoOp},
		{"recovers to threshold", 10, 10, false, true, Resolve},
		{"recovers above", 15, 10, false, true, Resolve},
		{"zero threshold never alerts", 0, 0, false, false, NoOp},
		{"deleted while low", 3, 10, true, true, Resolve},
		{"deleted while normal", 3, 10, true, false, NoOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := ledger.StockChange{ProductID: "p", NewQuantity: tt.qty, Threshold: tt.threshold, Deleted: tt.deleted}
			assert.Equal(t, tt.want, Evaluate(ch, tt.active))
		})
	}
}

type fixture struct {
	st  store.Store
	mon *Monitor
	cat *catalog.Catalog
	pub *capture
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := memstore.New()
	require.NoError(t, err)
	pub := &capture{}
	mon := NewMonitor(st, pub, zap.NewNop())
	cat := catalog.New(st, zap.NewNop(), catalog.Options{}, mon)
	return fixture{st: st, mon: mon, cat: cat, pub: pub}
}

func (f fixture) create(t *testing.T, qty int) ledger.Product {
	t.Helper()
	p, err := f.cat.Create(context.Background(), ledger.ProductSpec{
		Name: "Widget", SKU: "W-1", Category: "tools", Price: decimal.NewFromInt(3), Quantity: qty,
	})
	require.NoError(t, err)
	return p
}

func TestAlertLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 12)

	all, err := f.mon.Alerts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.cat.ReserveStock(ctx, []ledger.LineRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	active, err := f.mon.Alerts(ctx, ledger.AlertActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 9, active[0].CurrentQuantity)
	assert.Equal(t, 10, active[0].Threshold)
	assert.Equal(t, "Widget", active[0].ProductName)

	_, err = f.cat.ReserveStock(ctx, []ledger.LineRequest{{ProductID: p.ID, Quantity: 9}})
	require.NoError(t, err)
	active, _ = f.mon.Alerts(ctx, ledger.AlertActive)
	assert.Len(t, active, 1, "still one active alert at zero")

	_, err = f.cat.Restock(ctx, p.ID, 15)
	require.NoError(t, err)
	active, _ = f.mon.Alerts(ctx, ledger.AlertActive)
	assert.Empty(t, active)

	resolved, err := f.mon.Alerts(ctx, ledger.AlertResolved)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].ResolvedAt)
	assert.Equal(t, 15, resolved[0].CurrentQuantity)

	assert.Len(t, f.pub.raised, 1)
	assert.Len(t, f.pub.resolved, 1)
}

func TestCreateBelowThresholdRaises(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, 2)

	low, err := f.mon.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, p.ID, low[0].Product.ID)
}

func TestReplayedChangeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 5)
	ch := ledger.ChangeOf(p)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.st.Update(ctx, func(tx store.Tx) error {
			return f.mon.OnStockChange(ctx, tx, ch)
		}))
	}
	all, err := f.mon.Alerts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, f.pub.raised, 1)
}

func TestDeletedProductResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 1)

	require.NoError(t, f.cat.Delete(ctx, p.ID))
	active, err := f.mon.Alerts(ctx, ledger.AlertActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	low, err := f.mon.LowStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, low)
}

func TestThresholdChangeReevaluates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 12)

	th := 20
	_, err := f.cat.Update(ctx, p.ID, ledger.ProductPatch{LowStockThreshold: &th})
	require.NoError(t, err)
	active, _ := f.mon.Alerts(ctx, ledger.AlertActive)
	assert.Len(t, active, 1)

	th = 5
	_, err = f.cat.Update(ctx, p.ID, ledger.ProductPatch{LowStockThreshold: &th})
	require.NoError(t, err)
	active, _ = f.mon.Alerts(ctx, ledger.AlertActive)
	assert.Empty(t, active)
}

func TestConcurrentCrossingsRaiseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 20)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := f.cat.ReserveStock(ctx, []ledger.LineRequest{{ProductID: p.ID, Quantity: 1}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	all, err := f.mon.Alerts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
