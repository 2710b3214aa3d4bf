package books

import (
	"net/http"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
)

// Get: GET /books/{id}
func Get(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := cat.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		httpx.OK(w, ToPublic(b))
	}
}
