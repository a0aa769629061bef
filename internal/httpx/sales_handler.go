package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/ariefcatur/go-pos-ledger/internal/sales"
)

const codeIdempotencyInFlight = "IDEMPOTENCY_IN_FLIGHT"

// Idempotency maps an Idempotency-Key to the sale it produced.
type Idempotency interface {
	Begin(ctx context.Context, key string) (saleID string, started bool, err error)
	Complete(ctx context.Context, key, saleID string) error
	Abort(ctx context.Context, key string) error
}

type SalesHandler struct {
	Sales   *sales.Processor
	Reports *reports.Aggregator
	// Idem is optional; without it Idempotency-Key headers are ignored.
	Idem Idempotency
	Log  *zap.Logger
}

type createSaleReq struct {
	Lines         []ledger.LineRequest `json:"lines"`
	PaymentMethod ledger.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
}

type inFlightError struct{}

func (inFlightError) Error() string { return "a request with this Idempotency-Key is still in flight" }
func (inFlightError) Code() string  { return codeIdempotencyInFlight }

func (h *SalesHandler) Register(r chi.Router) {
	r.Post("/sales", h.create)
	r.Get("/sales", h.list)
	r.Get("/sales/stats", h.stats)
	r.Get("/sales/{id}", h.get)
}

func (h *SalesHandler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, h.Log, ledger.ErrUnauthorized)
		return
	}
	var body createSaleReq
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	req := ledger.SaleRequest{
		Lines:         body.Lines,
		CashierID:     p.UserID,
		PaymentMethod: body.PaymentMethod,
		Notes:         body.Notes,
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.Idem != nil {
		// keys are scoped per cashier
		key = p.UserID + ":" + key
		saleID, started, err := h.Idem.Begin(r.Context(), key)
		switch {
		case err != nil:
			h.Log.Warn("idempotency unavailable, processing without it", zap.Error(err))
			key = ""
		case !started && saleID == "":
			writeError(w, r, h.Log, inFlightError{})
			return
		case !started:
			sale, err := h.Sales.Get(r.Context(), saleID)
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, sale)
			return
		}
	} else {
		key = ""
	}

	sale, err := h.Sales.CreateSale(r.Context(), req)
	if key != "" {
		ctx := context.WithoutCancel(r.Context())
		if err != nil {
			_ = h.Idem.Abort(ctx, key)
		} else if cerr := h.Idem.Complete(ctx, key, sale.ID); cerr != nil {
			h.Log.Warn("could not record idempotency key", zap.String("sale_id", sale.ID), zap.Error(cerr))
		}
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (h *SalesHandler) get(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Sales.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (h *SalesHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	limit, err := intQuery(r, "limit", 10)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	start, end, err := dayRange(h.Reports, r, "startDate", "endDate")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	out, err := h.Sales.List(r.Context(), sales.ListQuery{Start: start, End: end, Page: page, Limit: limit})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SalesHandler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Reports.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
