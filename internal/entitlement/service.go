// Package entitlement records purchases and answers ownership questions.
// It is the only writer of the userBooks collection.
package entitlement

import (
	"context"
	"log/slog"
	"strings"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
)

type Store interface {
	Insert(ctx context.Context, userID, bookID string) (string, error)
	Exists(ctx context.Context, userID, bookID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Entitlement, error)
}

type Books interface {
	Get(ctx context.Context, id string) (models.Book, error)
}

type Service struct {
	store Store
	books Books
	log   *slog.Logger
}

func NewService(store Store, books Books) *Service {
	return &Service{store: store, books: books, log: slog.Default()}
}

// Purchase records that userID bought bookID. There is no payment step and
// no duplicate check; buying twice yields two records.
func (s *Service) Purchase(ctx context.Context, userID, bookID string) (string, error) {
	if err := requireIDs("entitlement.purchase", userID, bookID); err != nil {
		return "", err
	}
	id, err := s.store.Insert(ctx, userID, bookID)
	if err != nil {
		return "", err
	}
	s.log.InfoContext(ctx, "book purchased", "user_id", userID, "book_id", bookID, "entitlement_id", id)
	return id, nil
}

func (s *Service) Owns(ctx context.Context, userID, bookID string) (bool, error) {
	if err := requireIDs("entitlement.owns", userID, bookID); err != nil {
		return false, err
	}
	return s.store.Exists(ctx, userID, bookID)
}

// ListOwned resolves every entitlement of userID to its book, in purchase
// order. Entitlements whose book no longer exists are skipped.
func (s *Service) ListOwned(ctx context.Context, userID string) ([]models.Book, error) {
	ents, err := s.Purchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Book, 0, len(ents))
	for _, e := range ents {
		b, err := s.books.Get(ctx, e.BookID)
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.DebugContext(ctx, "skipping entitlement for missing book", "entitlement_id", e.ID, "book_id", e.BookID)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Purchases returns the raw entitlement records of userID.
func (s *Service) Purchases(ctx context.Context, userID string) ([]models.Entitlement, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("entitlement.list", "userId", "user id is required")
	}
	return s.store.ListByUser(ctx, userID)
}

func requireIDs(op, userID, bookID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation(op, "userId", "user id is required")
	}
	if strings.TrimSpace(bookID) == "" {
		return apperr.Validation(op, "bookId", "book id is required")
	}
	return nil
}
