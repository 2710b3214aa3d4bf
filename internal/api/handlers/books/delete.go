package books

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/session"
)

// Remover deletes catalog entries.
type Remover interface {
	Delete(ctx context.Context, id string) error
}

// Delete: DELETE /publisher/books/{id}
// Readers who bought the book keep their purchase record; the book just
// drops out of their library.
func Delete(cat Remover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := cat.Delete(r.Context(), id); err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		slog.InfoContext(r.Context(), "book deleted",
			"book_id", id, "user_id", session.FromContext(r.Context()).UserID())

		// No response body on successful delete.
		w.WriteHeader(http.StatusNoContent)
	}
}
