package books

import (
	"log"
	"net/http"
	"strconv"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/asset"
)

// Cover: GET /books/{id}/cover
// Inline covers are decoded and served; external ones are redirected to.
func Cover(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := cat.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		if b.Cover == nil {
			apperr.WriteError(w, r, apperr.NotFound("books.cover", "book has no cover"))
			return
		}
		if b.Cover.URL != "" {
			http.Redirect(w, r, b.Cover.URL, http.StatusFound)
			return
		}

		ct, data, err := asset.DecodeDataURL(b.Cover.DataURL)
		if err != nil {
			log.Printf("[Cover] book %s has an unreadable cover: %v", b.ID, err)
			apperr.WriteError(w, r, apperr.NotFound("books.cover", "book has no cover"))
			return
		}
		if b.Cover.ContentType != "" {
			ct = b.Cover.ContentType
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(data)
		}
	}
}
