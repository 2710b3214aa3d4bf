package middlewares

import (
	"net/http"

	"github.com/5w1tchy/folio-api/internal/validate"
)

// DefaultBodyLimit is used for JSON endpoints; MAX_BODY_SIZE overrides it.
const DefaultBodyLimit = 10 << 20

// BodySizeLimit caps request bodies of mutating methods at MAX_BODY_SIZE.
func BodySizeLimit(next http.Handler) http.Handler {
	return BodyLimit(int64(validate.EnvInt("MAX_BODY_SIZE", DefaultBodyLimit)))(next)
}

// BodyLimit caps mutating request bodies at n bytes. Ingestion routes use a
// larger limit than the rest of the API.
func BodyLimit(n int64) func(http.Handler) http.Handler {
	if n <= 0 {
		n = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
