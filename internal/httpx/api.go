package httpx

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// API mounts every authenticated route on r.
type API struct {
	Tokens   Verifier
	Products *ProductsHandler
	Sales    *SalesHandler
	Reports  *ReportsHandler
	Users    *UsersHandler
	Log      *zap.Logger
}

func (a *API) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(a.Tokens, a.Log))
		a.Products.Register(r)
		a.Sales.Register(r)
		a.Reports.Register(r)
		a.Users.Register(r)
	})
}
