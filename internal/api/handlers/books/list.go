package books

import (
	"net/http"
	"strings"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
)

// List: GET /books?genre=
func List(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		genre := strings.TrimSpace(r.URL.Query().Get("genre"))

		books, err := cat.List(r.Context(), genre)
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		out := make([]PublicBook, 0, len(books))
		for _, b := range books {
			out = append(out, ToPublic(b))
		}
		httpx.OK(w, out)
	}
}
