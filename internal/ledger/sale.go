package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentCheck PaymentMethod = "check"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCheck:
		return true
	}
	return false
}

// LineRequest is one requested (product, quantity) pair of a sale.
type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// NewSaleLine snapshots name and price; Total is always Price x Quantity.
func NewSaleLine(productID, name string, price decimal.Decimal, qty int) SaleLine {
	return SaleLine{
		ProductID:   productID,
		ProductName: name,
		Price:       price,
		Quantity:    qty,
		Total:       price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

type Sale struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	Lines         []SaleLine      `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CashierID     string          `json:"cashier_id"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SaleRequest struct {
	Lines         []LineRequest
	CashierID     string
	PaymentMethod PaymentMethod
	Notes         string
}

// Subtotal sums line totals.
func Subtotal(lines []SaleLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total)
	}
	return sum
}

// Clone deep-copies the line slice so stored sales never share backing arrays.
func (s Sale) Clone() Sale {
	out := s
	out.Lines = append([]SaleLine(nil), s.Lines...)
	return out
}
