package ledger

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims the free-text fields of a product in place.
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.SKU = strings.TrimSpace(p.SKU)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)
	p.Barcode = strings.TrimSpace(p.Barcode)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
}

// ValidateProduct runs before every create and update, independent of any
// constraint the storage layer enforces.
func ValidateProduct(p Product) error {
	if err := validate.Struct(p); err != nil {
		return fromValidator(err)
	}
	if p.Price.IsNegative() {
		return Invalid("price", "must not be negative")
	}
	// price columns are NUMERIC(14,2)
	if !p.Price.Equal(p.Price.Round(2)) {
		return Invalid("price", "must have at most 2 decimal places")
	}
	if p.Price.GreaterThanOrEqual(maxPrice) {
		return Invalid("price", "must be less than 1000000000000")
	}
	return nil
}

var maxPrice = decimal.New(1, 12)

// ValidateSaleRequest checks the shape of a sale before any stock is touched.
func ValidateSaleRequest(req SaleRequest) error {
	if len(req.Lines) == 0 {
		return Invalid("lines", "must contain at least one line")
	}
	for _, l := range req.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return Invalid("lines.product_id", "is required")
		}
		if l.Quantity <= 0 {
			return Invalid("lines.quantity", "must be greater than zero")
		}
	}
	if !req.PaymentMethod.Valid() {
		return Invalid("payment_method", "must be one of cash, card, check")
	}
	if strings.TrimSpace(req.CashierID) == "" {
		return Invalid("cashier_id", "is required")
	}
	return nil
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Invalid("", err.Error())
	}
	fe := verrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "gte":
		reason = "must be >= " + fe.Param()
	case "max":
		reason = "must be at most " + fe.Param() + " characters"
	case "url":
		reason = "must be a valid URL"
	default:
		reason = "failed " + fe.Tag()
	}
	return Invalid(fe.Field(), reason)
}
