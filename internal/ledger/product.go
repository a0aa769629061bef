package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultLowStockThreshold = 10

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name" validate:"required,max=200"`
	SKU               string          `json:"sku" validate:"required,max=64"`
	Category          string          `json:"category" validate:"required,max=100"`
	Description       string          `json:"description,omitempty" validate:"max=2000"`
	Barcode           string          `json:"barcode,omitempty" validate:"max=64"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity" validate:"gte=0"`
	LowStockThreshold int             `json:"low_stock_threshold" validate:"gte=0"`
	ImageURL          string          `json:"image_url,omitempty" validate:"omitempty,url"`
	CreatedBy         string          `json:"created_by,omitempty"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p Product) BelowThreshold() bool { return p.Quantity < p.LowStockThreshold }

// ProductSpec is the admin input for a new product. A nil LowStockThreshold
// falls back to the catalog default.
type ProductSpec struct {
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	Barcode           string          `json:"barcode"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold *int            `json:"low_stock_threshold"`
	ImageURL          string          `json:"image_url"`
	CreatedBy         string          `json:"-"`
}

// ProductPatch carries a partial update; nil fields are left untouched.
// Quantity is absent: stock only moves through reserve, release
// and restock.
type ProductPatch struct {
	Name              *string          `json:"name"`
	SKU               *string          `json:"sku"`
	Category          *string          `json:"category"`
	Description       *string          `json:"description"`
	Barcode           *string          `json:"barcode"`
	Price             *decimal.Decimal `json:"price"`
	LowStockThreshold *int             `json:"low_stock_threshold"`
	ImageURL          *string          `json:"image_url"`
}

func (p ProductPatch) Apply(dst *Product) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.SKU != nil {
		dst.SKU = *p.SKU
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Barcode != nil {
		dst.Barcode = *p.Barcode
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.LowStockThreshold != nil {
		dst.LowStockThreshold = *p.LowStockThreshold
	}
	if p.ImageURL != nil {
		dst.ImageURL = *p.ImageURL
	}
}

// StockChange is emitted for every committed quantity mutation.
type StockChange struct {
	ProductID   string
	ProductName string
	NewQuantity int
	Threshold   int
	Deleted     bool
}

func ChangeOf(p Product) StockChange {
	return StockChange{
		ProductID:   p.ID,
		ProductName: p.Name,
		NewQuantity: p.Quantity,
		Threshold:   p.LowStockThreshold,
	}
}
