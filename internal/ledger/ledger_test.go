package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProduct() Product {
	return Product{
		Name:              "Arabica Beans 1kg",
		SKU:               "COF-001",
		Category:          "coffee",
		Price:             decimal.RequireFromString("12.50"),
		Quantity:          12,
		LowStockThreshold: 10,
	}
}

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Product)
		field  string
	}{
		{"valid", func(p *Product) {}, ""},
		{"missing name", func(p *Product) { p.Name = "" }, "name"},
		{"missing sku", func(p *Product) { p.SKU = "" }, "sku"},
		{"missing category", func(p *Product) { p.Category = "" }, "category"},
		{"negative price", func(p *Product) { p.Price = decimal.NewFromInt(-1) }, "price"},
		{"sub-cent price", func(p *Product) { p.Price = decimal.RequireFromString("1.005") }, "price"},
		{"trailing zeros are fine", func(p *Product) { p.Price = decimal.RequireFromString("1.5000") }, ""},
		{"price beyond storage range", func(p *Product) { p.Price = decimal.New(1, 12) }, "price"},
		{"negative quantity", func(p *Product) { p.Quantity = -1 }, "quantity"},
		{"negative threshold", func(p *Product) { p.LowStockThreshold = -3 }, "low_stock_threshold"},
		{"bad image url", func(p *Product) { p.ImageURL = "not a url" }, "image_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(&p)
			err := ValidateProduct(p)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestNormalizeTrims(t *testing.T) {
	p := validProduct()
	p.Name = "  Beans "
	p.SKU = " COF-001\t"
	p.Normalize()
	assert.Equal(t, "Beans", p.Name)
	assert.Equal(t, "COF-001", p.SKU)
}

func TestValidateSaleRequest(t *testing.T) {
	ok := SaleRequest{
		Lines:         []LineRequest{{ProductID: "p1", Quantity: 1}},
		CashierID:     "u1",
		PaymentMethod: PaymentCard,
	}
	require.NoError(t, ValidateSaleRequest(ok))

	cases := map[string]SaleRequest{
		"lines":          {CashierID: "u1", PaymentMethod: PaymentCash},
		"lines.quantity": {Lines: []LineRequest{{ProductID: "p1", Quantity: 0}}, CashierID: "u1", PaymentMethod: PaymentCash},
		"payment_method": {Lines: ok.Lines, CashierID: "u1", PaymentMethod: "bitcoin"},
		"cashier_id":     {Lines: ok.Lines, PaymentMethod: PaymentCash},
	}
	for field, req := range cases {
		t.Run(field, func(t *testing.T) {
			var ve *ValidationError
			require.ErrorAs(t, ValidateSaleRequest(req), &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
}

func TestSaleLineArithmetic(t *testing.T) {
	a := NewSaleLine("p1", "Beans", decimal.RequireFromString("12.50"), 3)
	b := NewSaleLine("p2", "Filter", decimal.RequireFromString("0.99"), 10)
	assert.True(t, a.Total.Equal(decimal.RequireFromString("37.50")))
	assert.True(t, b.Total.Equal(decimal.RequireFromString("9.90")))
	assert.True(t, Subtotal([]SaleLine{a, b}).Equal(decimal.RequireFromString("47.40")))
}

func TestProductPatchApply(t *testing.T) {
	p := validProduct()
	name := "Robusta"
	th := 3
	ProductPatch{Name: &name, LowStockThreshold: &th}.Apply(&p)
	assert.Equal(t, "Robusta", p.Name)
	assert.Equal(t, 3, p.LowStockThreshold)
	assert.Equal(t, "COF-001", p.SKU)
	assert.Equal(t, 12, p.Quantity)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeInsufficientStock, ErrorCode(fmt.Errorf("wrap: %w", &InsufficientStockError{ProductID: "p"})))
	assert.Equal(t, CodeTransient, ErrorCode(Transient("reserve", errors.New("boom"))))
	assert.Equal(t, CodeForbidden, ErrorCode(ErrForbidden))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.True(t, IsTransient(fmt.Errorf("x: %w", Transient("op", nil))))
}
