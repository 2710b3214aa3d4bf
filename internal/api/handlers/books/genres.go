package books

import (
	"net/http"
	"sort"
	"strings"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/store/shared"
)

type Genre struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// Genres: GET /genres
// Genres are free text on each book; names that differ only in case are
// merged and the first spelling seen wins.
func Genres(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		books, err := cat.List(r.Context(), "")
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}

		byKey := map[string]*Genre{}
		for _, b := range books {
			name := strings.TrimSpace(b.Genre)
			if name == "" {
				continue
			}
			k := strings.ToLower(name)
			if g, ok := byKey[k]; ok {
				g.Count++
				continue
			}
			byKey[k] = &Genre{Name: name, Slug: shared.Slugify(name), Count: 1}
		}

		out := make([]Genre, 0, len(byKey))
		for _, g := range byKey {
			out = append(out, *g)
		}
		sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"count":  len(out),
			"data":   out,
		})
	}
}
