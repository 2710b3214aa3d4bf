// Package userbooks persists purchase records in the "userBooks" collection.
// Uniqueness of (userId, bookId) is not enforced; duplicates are harmless.
package userbooks

import (
	"context"
	"time"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/store/docstore"
)

const (
	fUserID      = "userId"
	fBookID      = "bookId"
	fPurchasedAt = "purchasedAt"
)

type Store struct {
	docs docstore.Store
	now  func() time.Time
}

func New(docs docstore.Store) *Store {
	return &Store{docs: docs, now: time.Now}
}

// Insert records a purchase and returns the new entitlement id.
func (s *Store) Insert(ctx context.Context, userID, bookID string) (string, error) {
	id, err := s.docs.Create(ctx, docstore.UserBooks, docstore.Fields{
		fUserID:      userID,
		fBookID:      bookID,
		fPurchasedAt: docstore.Timestamp(s.now()),
	})
	if err != nil {
		return "", apperr.Store("userbooks.insert", err)
	}
	return id, nil
}

// Exists reports whether at least one entitlement for (userID, bookID) exists.
func (s *Store) Exists(ctx context.Context, userID, bookID string) (bool, error) {
	docs, err := s.docs.Query(ctx, docstore.UserBooks,
		docstore.Eq(fUserID, userID), docstore.Eq(fBookID, bookID))
	if err != nil {
		return false, apperr.Store("userbooks.exists", err)
	}
	return len(docs) > 0, nil
}

// ListByUser returns every entitlement of userID, duplicates included.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]models.Entitlement, error) {
	docs, err := s.docs.Query(ctx, docstore.UserBooks, docstore.Eq(fUserID, userID))
	if err != nil {
		return nil, apperr.Store("userbooks.list", err)
	}
	out := make([]models.Entitlement, 0, len(docs))
	for _, d := range docs {
		e := models.Entitlement{
			ID:     d.ID,
			UserID: d.Fields.String(fUserID),
			BookID: d.Fields.String(fBookID),
		}
		if t, err := d.Fields.Time(fPurchasedAt); err == nil {
			e.PurchasedAt = t
		}
		out = append(out, e)
	}
	return out, nil
}
