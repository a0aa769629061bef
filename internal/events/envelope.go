package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventSaleRecorded       = "SaleRecorded"
	EventStockAlertRaised   = "StockAlertRaised"
	EventStockAlertResolved = "StockAlertResolved"
)

const (
	TopicSales  = "pos.sale.recorded"
	TopicAlerts = "pos.stock.alerts"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type SaleRecordedPayload struct {
	SaleID        string          `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CashierID     string          `json:"cashier_id"`
	Total         decimal.Decimal `json:"total"`
	LineCount     int             `json:"line_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

type StockAlertPayload struct {
	AlertID         string `json:"alert_id"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	CurrentQuantity int    `json:"current_quantity"`
	Threshold       int    `json:"threshold"`
	Status          string `json:"status"`
}
