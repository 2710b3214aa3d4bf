package books

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/metrics/viewqueue"
)

// ReadCounter ranks books by recorded reads.
type ReadCounter interface {
	MostRead(ctx context.Context, since time.Time, limit int) ([]viewqueue.Count, error)
}

type PopularBook struct {
	PublicBook
	Reads int64 `json:"reads"`
}

// Popular: GET /books/popular?days=&limit=
// Most-read books over the last `days` (default 7, max 90).
func Popular(cat Catalog, reads ReadCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, limit := 7, 10
		if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 && v <= 90 {
			days = v
		}
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 50 {
			limit = v
		}

		ctx := r.Context()
		counts, err := reads.MostRead(ctx, time.Now().AddDate(0, 0, -days), limit)
		if err != nil {
			log.Printf("[Popular] read counts: %v", err)
			apperr.WriteError(w, r, apperr.Store("books.popular", err))
			return
		}

		out := make([]PopularBook, 0, len(counts))
		for _, c := range counts {
			b, err := cat.Get(ctx, c.BookID)
			if apperr.Is(err, apperr.KindNotFound) {
				continue
			}
			if err != nil {
				apperr.WriteError(w, r, err)
				return
			}
			out = append(out, PopularBook{PublicBook: ToPublic(b), Reads: c.Reads})
		}
		httpx.OK(w, out)
	}
}
