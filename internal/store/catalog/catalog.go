// Package catalog persists books in the "books" collection. Metadata is
// written once by Create; content and cover arrive later in one Patch.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/store/docstore"
)

// Document field names. They match what the storefront front end reads.
const (
	fTitle            = "title"
	fAuthor           = "author"
	fDescription      = "description"
	fGenre            = "genre"
	fPrice            = "price"
	fTextContent      = "textContent"
	fPDFURL           = "pdfURL"
	fCoverBase64      = "coverBase64"
	fCoverContentType = "coverContentType"
	fCoverURL         = "coverURL"
	fCreatedAt        = "createdAt"
)

// NewBook is the metadata accepted at creation time.
type NewBook struct {
	Title       string
	Author      string
	Description string
	Genre       string
	Price       *float64
}

// AssetPatch holds the ingestion outputs. Nil fields are left untouched.
type AssetPatch struct {
	TextContent *string
	PDFURL      *string
	Cover       *models.Cover
}

func (p AssetPatch) Empty() bool {
	return p.TextContent == nil && p.PDFURL == nil && p.Cover == nil
}

type Store struct {
	docs docstore.Store
	now  func() time.Time
}

func New(docs docstore.Store) *Store {
	return &Store{docs: docs, now: time.Now}
}

// Create writes the metadata record with content and cover explicitly null.
func (s *Store) Create(ctx context.Context, nb NewBook) (string, error) {
	const op = "catalog.create"
	fields := docstore.Fields{
		fTitle:            nb.Title,
		fAuthor:           nb.Author,
		fDescription:      nb.Description,
		fGenre:            nb.Genre,
		fPrice:            nil,
		fTextContent:      nil,
		fPDFURL:           nil,
		fCoverBase64:      nil,
		fCoverContentType: nil,
		fCreatedAt:        docstore.Timestamp(s.now()),
	}
	if nb.Price != nil {
		fields[fPrice] = *nb.Price
	}
	id, err := s.docs.Create(ctx, docstore.Books, fields)
	if err != nil {
		return "", apperr.Store(op, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Book, error) {
	const op = "catalog.get"
	f, err := s.docs.Get(ctx, docstore.Books, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Book{}, apperr.NotFound(op, "book not found")
	}
	if err != nil {
		return models.Book{}, apperr.Store(op, err)
	}
	return toBook(id, f), nil
}

// Patch applies every asset field in a single document write.
func (s *Store) Patch(ctx context.Context, id string, p AssetPatch) error {
	const op = "catalog.patch"
	if p.Empty() {
		return nil
	}
	fields := docstore.Fields{}
	if p.TextContent != nil {
		fields[fTextContent] = *p.TextContent
	}
	if p.PDFURL != nil {
		fields[fPDFURL] = *p.PDFURL
	}
	if c := p.Cover; c != nil {
		if c.DataURL != "" {
			fields[fCoverBase64] = c.DataURL
			fields[fCoverContentType] = c.ContentType
		}
		if c.URL != "" {
			fields[fCoverURL] = c.URL
		}
	}
	err := s.docs.Patch(ctx, docstore.Books, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound(op, "book not found")
	}
	if err != nil {
		return apperr.Store(op, err)
	}
	return nil
}

// Delete removes the book document. Purchase records that name it stay;
// owned-book listings skip them.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "catalog.delete"
	err := s.docs.Delete(ctx, docstore.Books, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound(op, "book not found")
	}
	if err != nil {
		return apperr.Store(op, err)
	}
	return nil
}

// List returns every book, newest first. A non-empty genre filters
// case-insensitively.
func (s *Store) List(ctx context.Context, genre string) ([]models.Book, error) {
	docs, err := s.docs.Query(ctx, docstore.Books)
	if err != nil {
		return nil, apperr.Store("catalog.list", err)
	}
	genre = strings.TrimSpace(genre)
	out := make([]models.Book, 0, len(docs))
	for _, d := range docs {
		b := toBook(d.ID, d.Fields)
		if genre != "" && !strings.EqualFold(b.Genre, genre) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListPending returns books created before cutoff that still have no content.
func (s *Store) ListPending(ctx context.Context, cutoff time.Time) ([]models.Book, error) {
	docs, err := s.docs.Query(ctx, docstore.Books,
		docstore.Eq(fTextContent, nil), docstore.Eq(fPDFURL, nil))
	if err != nil {
		return nil, apperr.Store("catalog.list_pending", err)
	}
	var out []models.Book
	for _, d := range docs {
		b := toBook(d.ID, d.Fields)
		if b.Pending() && b.CreatedAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

func toBook(id string, f docstore.Fields) models.Book {
	b := models.Book{
		ID:          id,
		Title:       f.String(fTitle),
		Author:      f.String(fAuthor),
		Description: f.String(fDescription),
		Genre:       f.String(fGenre),
		TextContent: f.StringPtr(fTextContent),
		PDFURL:      f.StringPtr(fPDFURL),
	}
	if p, ok := f.Float(fPrice); ok {
		b.Price = &p
	}
	if t, err := f.Time(fCreatedAt); err == nil {
		b.CreatedAt = t
	}
	if data := f.String(fCoverBase64); data != "" {
		b.Cover = &models.Cover{DataURL: data, ContentType: f.String(fCoverContentType)}
	} else if u := f.String(fCoverURL); u != "" {
		b.Cover = &models.Cover{URL: u}
	}
	return b
}
