package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(code string) int {
	switch code {
	case ledger.CodeValidation:
		return http.StatusUnprocessableEntity
	case ledger.CodeNotFound:
		return http.StatusNotFound
	case ledger.CodeDuplicateSKU, ledger.CodeInsufficientStock, codeIdempotencyInFlight:
		return http.StatusConflict
	case ledger.CodeDuplicateInvoice, ledger.CodeTransient:
		return http.StatusServiceUnavailable
	case ledger.CodeUnauthorized:
		return http.StatusUnauthorized
	case ledger.CodeForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code := ledger.ErrorCode(err)
	if code == "" && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		code = ledger.CodeTransient
	}
	body := apiError{Code: code, Message: err.Error()}

	var ve *ledger.ValidationError
	var ise *ledger.InsufficientStockError
	switch {
	case errors.As(err, &ve):
		body.Field = ve.Field
	case errors.As(err, &ise):
		body.ProductID = ise.ProductID
		body.Requested = ise.Requested
		body.Available = &ise.Available
	}

	status := statusOf(code)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
		body = apiError{Code: "INTERNAL", Message: "internal error"}
	}
	writeJSON(w, status, errorBody{Error: body})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ledger.Invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// intQuery reads a positive integer query parameter, def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ledger.Invalid(name, "must be a non-negative integer")
	}
	return n, nil
}
