package middlewares

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/5w1tchy/folio-api/internal/apperr"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				rid := GetRequestID(r)
				if rid == "" {
					rid = "unknown"
				}
				slog.ErrorContext(r.Context(), "panic recovered",
					"request_id", rid, "method", r.Method, "path", r.URL.Path,
					"panic", err, "stack", string(debug.Stack()))

				// internals never reach the client
				apperr.Write(w, r, apperr.Problem{
					Status:    http.StatusInternalServerError,
					Title:     "Internal Server Error",
					RequestID: rid,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
