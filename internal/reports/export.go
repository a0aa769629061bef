package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", string(FormatCSV):
		return FormatCSV, nil
	case string(FormatJSON):
		return FormatJSON, nil
	}
	return "", ledger.Invalid("format", "must be csv or json")
}

var csvHeader = []string{"Invoice Number", "Date", "Cashier", "Items", "Subtotal", "Tax", "Total", "Payment Method"}

type exportDoc struct {
	ExportDate   time.Time     `json:"export_date"`
	TotalRecords int           `json:"total_records"`
	Sales        []ledger.Sale `json:"sales"`
}

// Export streams every sale in [start, end) to w.
func (a *Aggregator) Export(ctx context.Context, w io.Writer, format Format, start, end time.Time) error {
	sales, err := a.salesBetween(ctx, start, end)
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(exportDoc{
			ExportDate:   a.now().UTC(),
			TotalRecords: len(sales),
			Sales:        sales,
		})
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, s := range sales {
			items := make([]string, 0, len(s.Lines))
			for _, l := range s.Lines {
				items = append(items, fmt.Sprintf("%s(%d)", l.ProductName, l.Quantity))
			}
			rec := []string{
				s.InvoiceNumber,
				s.CreatedAt.UTC().Format(time.RFC3339),
				s.CashierID,
				strings.Join(items, ";"),
				s.Subtotal.StringFixed(2),
				s.Tax.StringFixed(2),
				s.Total.StringFixed(2),
				string(s.PaymentMethod),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
	return ledger.Invalid("format", "must be csv or json")
}
