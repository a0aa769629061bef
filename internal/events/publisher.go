package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
)

// Publisher emits committed domain facts to the outside world. Delivery is
// best effort: a failed publish never undoes the operation that caused it.
type Publisher interface {
	SaleRecorded(ctx context.Context, s ledger.Sale)
	AlertRaised(ctx context.Context, a ledger.StockAlert)
	AlertResolved(ctx context.Context, a ledger.StockAlert)
}

type Nop struct{}

func (Nop) SaleRecorded(context.Context, ledger.Sale)        {}
func (Nop) AlertRaised(context.Context, ledger.StockAlert)   {}
func (Nop) AlertResolved(context.Context, ledger.StockAlert) {}

type KafkaPublisher struct {
	Sales   *kafkax.Producer
	Alerts  *kafkax.Producer
	Service string
}

func (p *KafkaPublisher) SaleRecorded(_ context.Context, s ledger.Sale) {
	p.emit(p.Sales, EventSaleRecorded, s.ID, SaleRecordedPayload{
		SaleID:        s.ID,
		InvoiceNumber: s.InvoiceNumber,
		CashierID:     s.CashierID,
		Total:         s.Total,
		LineCount:     len(s.Lines),
		CreatedAt:     s.CreatedAt,
	})
}

func (p *KafkaPublisher) AlertRaised(_ context.Context, a ledger.StockAlert) {
	p.emit(p.Alerts, EventStockAlertRaised, a.ProductID, alertPayload(a))
}

func (p *KafkaPublisher) AlertResolved(_ context.Context, a ledger.StockAlert) {
	p.emit(p.Alerts, EventStockAlertResolved, a.ProductID, alertPayload(a))
}

// Partition key is the product (alerts) or sale id, keeping per-entity order.
func (p *KafkaPublisher) emit(prod *kafkax.Producer, eventType, key string, payload any) {
	if prod == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(payload),
	}
	prod.Publish([]byte(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func alertPayload(a ledger.StockAlert) StockAlertPayload {
	return StockAlertPayload{
		AlertID:         a.ID,
		ProductID:       a.ProductID,
		ProductName:     a.ProductName,
		CurrentQuantity: a.CurrentQuantity,
		Threshold:       a.Threshold,
		Status:          string(a.Status),
	}
}
