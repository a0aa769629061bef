package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/alerts"
	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/catalog"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
)

type ProductsHandler struct {
	Catalog *catalog.Catalog
	Alerts  *alerts.Monitor
	Log     *zap.Logger
}

type restockReq struct {
	Quantity int `json:"quantity"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/lowstock", h.lowStock)
	r.Get("/products/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(RequireRole(auth.RoleAdmin, h.Log))
		r.Post("/products", h.create)
		r.Put("/products/{id}", h.update)
		r.Delete("/products/{id}", h.delete)
		r.Post("/products/{id}/restock", h.restock)
		r.Get("/alerts", h.alerts)
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	out, err := h.Catalog.List(r.Context(), catalog.ListQuery{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.Alerts.LowStock(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var spec ledger.ProductSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if p, ok := auth.FromContext(r.Context()); ok {
		spec.CreatedBy = p.UserID
	}
	p, err := h.Catalog.Create(r.Context(), spec)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch ledger.ProductPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	p, err := h.Catalog.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, r, h.Log, ledger.Invalid("quantity", "must be greater than zero"))
		return
	}
	p, err := h.Catalog.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) alerts(w http.ResponseWriter, r *http.Request) {
	status := ledger.AlertStatus(r.URL.Query().Get("status"))
	switch status {
	case "", ledger.AlertActive, ledger.AlertResolved:
	default:
		writeError(w, r, h.Log, ledger.Invalid("status", "must be active or resolved"))
		return
	}
	out, err := h.Alerts.Alerts(r.Context(), status)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
