package ledger

import (
	"errors"
	"fmt"
)

// Stable codes surfaced to API clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicateSKU      = "DUPLICATE_SKU"
	CodeDuplicateInvoice  = "DUPLICATE_INVOICE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeTransient         = "TRANSIENT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Code() string { return CodeValidation }

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (e *NotFoundError) Code() string  { return CodeNotFound }

type DuplicateSKUError struct {
	SKU string `json:"sku"`
}

func (e *DuplicateSKUError) Error() string { return fmt.Sprintf("sku %q already exists", e.SKU) }
func (e *DuplicateSKUError) Code() string  { return CodeDuplicateSKU }

type DuplicateInvoiceError struct {
	InvoiceNumber string `json:"invoice_number"`
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("invoice %q already exists", e.InvoiceNumber)
}
func (e *DuplicateInvoiceError) Code() string { return CodeDuplicateInvoice }

// InsufficientStockError names the first line that could not be satisfied.
type InsufficientStockError struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
func (e *InsufficientStockError) Code() string { return CodeInsufficientStock }

// TransientError marks contention or timeouts that exhausted internal retries.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Op + ": transient failure"
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}
func (e *TransientError) Unwrap() error { return e.Err }
func (e *TransientError) Code() string  { return CodeTransient }

func Transient(op string, err error) *TransientError { return &TransientError{Op: op, Err: err} }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrorCode extracts the stable code of a ledger error, or "" for foreign errors.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	}
	return ""
}
