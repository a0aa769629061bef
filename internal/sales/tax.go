package sales

import "github.com/shopspring/decimal"

type TaxPolicy interface {
	Tax(subtotal decimal.Decimal) decimal.Decimal
}

// FlatTax charges Rate x subtotal, rounded half away from zero to cents.
type FlatTax struct {
	Rate decimal.Decimal
}

func (f FlatTax) Tax(subtotal decimal.Decimal) decimal.Decimal {
	if f.Rate.IsZero() || !f.Rate.IsPositive() {
		return decimal.Zero
	}
	return subtotal.Mul(f.Rate).Round(2)
}
