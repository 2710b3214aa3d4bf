package books

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/store/shared"
)

type SuggestItem struct {
	Type  string  `json:"type"` // "book" | "author"
	Score float64 `json:"-"`    // internal ranking only

	Label string `json:"label"`
	URL   string `json:"url"`

	// Book fields
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`

	// Author fields
	Name       string `json:"name,omitempty"`
	BooksCount int    `json:"books_count,omitempty"`
}

// fold lowercases and strips accents and punctuation so "Émile" matches "emile".
func fold(s string) string {
	f := strings.ReplaceAll(shared.Slugify(s), "-", " ")
	if f == "n a" {
		return ""
	}
	return f
}

// match scores how well text matches an already folded query.
func match(text, q string) float64 {
	t := fold(text)
	switch {
	case t == "" || q == "":
		return 0
	case t == q:
		return 1
	case strings.HasPrefix(t, q):
		return 0.9
	case strings.Contains(" "+t, " "+q):
		return 0.7
	case strings.Contains(t, q):
		return 0.5
	}
	return 0
}

// Suggest: GET /books/suggest?q=&limit=&genre=
// Type-ahead over titles and authors. Queries shorter than two characters
// return nothing.
func Suggest(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := fold(r.URL.Query().Get("q"))
		if len([]rune(q)) < 2 {
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"status": "success", "count": 0, "data": []any{},
			})
			return
		}

		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 20 {
				limit = n
			}
		}

		books, err := cat.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("genre")))
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}

		var mixed []SuggestItem
		authors := map[string]*SuggestItem{}
		for _, b := range books {
			authorScore := match(b.Author, q)
			if s := max(match(b.Title, q), 0.8*authorScore); s > 0 {
				mixed = append(mixed, SuggestItem{
					Type: "book", Score: s,
					ID: b.ID, Title: b.Title, Author: b.Author,
					Label: b.Title + " by " + b.Author,
					URL:   "/books/" + b.ID,
				})
			}
			if authorScore == 0 {
				continue
			}
			key := fold(b.Author)
			if a, ok := authors[key]; ok {
				a.BooksCount++
				continue
			}
			authors[key] = &SuggestItem{
				Type: "author", Score: authorScore,
				Name: b.Author, Label: b.Author, BooksCount: 1,
				URL: "/books/suggest?q=" + strings.ReplaceAll(key, " ", "+"),
			}
		}
		for _, a := range authors {
			mixed = append(mixed, *a)
		}

		sort.Slice(mixed, func(i, j int) bool {
			if mixed[i].Score == mixed[j].Score {
				if mixed[i].Type != mixed[j].Type {
					return mixed[i].Type == "book"
				}
				return strings.ToLower(mixed[i].Label) < strings.ToLower(mixed[j].Label)
			}
			return mixed[i].Score > mixed[j].Score
		})
		if len(mixed) > limit {
			mixed = mixed[:limit]
		}
		if mixed == nil {
			mixed = []SuggestItem{}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"count":  len(mixed),
			"data":   mixed,
		})
	}
}
