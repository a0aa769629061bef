package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
)

type UsersHandler struct {
	Directory *auth.Directory
	Log       *zap.Logger
}

func (h *UsersHandler) Register(r chi.Router) {
	r.With(RequireRole(auth.RoleAdmin, h.Log)).Get("/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Directory.List())
	})
}
