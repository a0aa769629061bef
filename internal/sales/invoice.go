package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceGenerator proposes invoice numbers. Proposals only need to be
// unique with high probability; the store's unique index has the final say.
type InvoiceGenerator interface {
	Next(ctx context.Context, at time.Time) (string, error)
}

// TimestampInvoices yields PREFIX-YYYYMMDDhhmmss-XXXXXXXX with a random suffix.
type TimestampInvoices struct {
	Prefix string
}

func (g TimestampInvoices) Next(_ context.Context, at time.Time) (string, error) {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "INV"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102150405"), suffix), nil
}

type InvoiceFunc func(ctx context.Context, at time.Time) (string, error)

func (f InvoiceFunc) Next(ctx context.Context, at time.Time) (string, error) { return f(ctx, at) }

// FallbackInvoices draws from Primary and switches to Secondary for any call
// where Primary fails, e.g. a shared counter that is unreachable.
type FallbackInvoices struct {
	Primary   InvoiceGenerator
	Secondary InvoiceGenerator
	Log       *zap.Logger
}

func (f FallbackInvoices) Next(ctx context.Context, at time.Time) (string, error) {
	inv, err := f.Primary.Next(ctx, at)
	if err == nil {
		return inv, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	f.Log.Warn("primary invoice source failed, using fallback", zap.Error(err))
	return f.Secondary.Next(ctx, at)
}
