package httpx

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
)

// RequestLogger logs one line per request once the response is written.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if p, ok := auth.FromContext(r.Context()); ok {
					fields = append(fields, zap.String("user_id", p.UserID))
				}
				switch {
				case ww.Status() >= 500:
					log.Error("http request", fields...)
				case ww.Status() >= 400:
					log.Warn("http request", fields...)
				default:
					log.Info("http request", fields...)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic serving request",
						zap.Any("panic", rec),
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.ByteString("stack", debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: apiError{Code: "INTERNAL", Message: "internal error"}})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type Verifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// principal on the request context.
func Authenticate(v Verifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, r, log, ledger.ErrUnauthorized)
				return
			}
			p, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Debug("token rejected", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
				writeError(w, r, log, ledger.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func RequireRole(role auth.Role, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, r, log, ledger.ErrUnauthorized)
				return
			}
			if p.Role != role {
				writeError(w, r, log, ledger.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
