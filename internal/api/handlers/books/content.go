package books

import (
	"log"
	"net/http"

	"github.com/5w1tchy/folio-api/internal/access"
	"github.com/5w1tchy/folio-api/internal/api/middlewares"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/metrics/viewqueue"
	"github.com/5w1tchy/folio-api/internal/session"
)

// Content: GET /books/{id}/content
// Readers and publishers who own the book get the text inline, or a
// redirect to the stored file. Each granted read is queued as a read event.
func Content(cat Catalog, gate *access.Gate, urls URLResolver, views *viewqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		b, err := cat.Get(ctx, r.PathValue("id"))
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}

		s := session.FromContext(ctx)
		if d := gate.CanRead(ctx, s, b.ID); !d.Allowed() {
			middlewares.WriteDecision(w, r, d)
			return
		}

		switch {
		case b.TextContent != nil:
			views.Enqueue(b.ID, s.UserID())
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "private, no-store")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(*b.TextContent))

		case b.PDFURL != nil:
			dest := *b.PDFURL
			if urls != nil {
				if dest, err = urls.ResolveURL(ctx, *b.PDFURL); err != nil {
					log.Printf("[Content] resolve %s for book %s: %v", *b.PDFURL, b.ID, err)
					apperr.WriteError(w, r, apperr.Store("books.content", err))
					return
				}
			}
			views.Enqueue(b.ID, s.UserID())
			http.Redirect(w, r, dest, http.StatusSeeOther)

		default:
			apperr.WriteError(w, r, apperr.NotFound("books.content", "content is not available yet"))
		}
	}
}
