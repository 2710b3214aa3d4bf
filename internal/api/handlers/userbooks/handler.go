package userbooks

import (
	"context"
	"net/http"

	"github.com/5w1tchy/folio-api/internal/api/handlers/books"
	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/session"
)

// Entitlements is the entitlement service as seen by HTTP.
type Entitlements interface {
	Purchase(ctx context.Context, userID, bookID string) (string, error)
	Owns(ctx context.Context, userID, bookID string) (bool, error)
	ListOwned(ctx context.Context, userID string) ([]models.Book, error)
	Purchases(ctx context.Context, userID string) ([]models.Entitlement, error)
}

// All handlers run behind RequireAccess; a missing session is still
// answered with a login redirect.
func caller(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	uid := session.FromContext(r.Context()).UserID()
	if uid == "" {
		apperr.WriteError(w, r, apperr.Unauthenticated(op))
		return "", false
	}
	return uid, true
}

// Purchase: POST /books/{id}/purchase
func Purchase(svc Entitlements) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := caller(w, r, "userbooks.purchase")
		if !ok {
			return
		}
		bookID := r.PathValue("id")
		id, err := svc.Purchase(r.Context(), uid, bookID)
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"status": "success",
			"data":   map[string]string{"id": id, "bookId": bookID},
		})
	}
}

// ListOwned: GET /user/books
func ListOwned(svc Entitlements) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := caller(w, r, "userbooks.list_owned")
		if !ok {
			return
		}
		owned, err := svc.ListOwned(r.Context(), uid)
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		out := make([]books.PublicBook, 0, len(owned))
		for _, b := range owned {
			out = append(out, books.ToPublic(b))
		}
		httpx.OK(w, out)
	}
}

// Purchases: GET /user/purchases
func Purchases(svc Entitlements) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := caller(w, r, "userbooks.purchases")
		if !ok {
			return
		}
		ents, err := svc.Purchases(r.Context(), uid)
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		if ents == nil {
			ents = []models.Entitlement{}
		}
		httpx.OK(w, ents)
	}
}

// Owned: GET /user/books/{id}/owned
func Owned(svc Entitlements) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := caller(w, r, "userbooks.owned")
		if !ok {
			return
		}
		bookID := r.PathValue("id")
		has, err := svc.Owns(r.Context(), uid, bookID)
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		httpx.OK(w, map[string]any{"bookId": bookID, "owned": has})
	}
}
