package ledger

import "time"

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

type StockAlert struct {
	ID              string      `json:"id"`
	ProductID       string      `json:"product_id"`
	ProductName     string      `json:"product_name"`
	CurrentQuantity int         `json:"current_quantity"`
	Threshold       int         `json:"threshold"`
	Status          AlertStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}
