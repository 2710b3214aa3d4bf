package books

import (
	"context"
	"time"

	"github.com/5w1tchy/folio-api/internal/models"
)

// Catalog is the read side of the catalog store.
type Catalog interface {
	Get(ctx context.Context, id string) (models.Book, error)
	List(ctx context.Context, genre string) ([]models.Book, error)
}

// URLResolver turns a stored content URL into one the client can fetch.
type URLResolver interface {
	ResolveURL(ctx context.Context, stored string) (string, error)
}

// PublicBook is the catalog view of a book. Content is never included; it
// is served by the gated content endpoint.
type PublicBook struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	Price       *float64  `json:"price"`
	CoverURL    string    `json:"coverURL,omitempty"`
	Format      string    `json:"format,omitempty"` // "text" or "file"
	Pending     bool      `json:"pending"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ToPublic strips content from b.
func ToPublic(b models.Book) PublicBook {
	pb := PublicBook{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genre:       b.Genre,
		Price:       b.Price,
		Pending:     b.Pending(),
		CreatedAt:   b.CreatedAt,
	}
	if b.Cover != nil {
		pb.CoverURL = "/books/" + b.ID + "/cover"
	}
	switch {
	case b.TextContent != nil:
		pb.Format = "text"
	case b.PDFURL != nil:
		pb.Format = "file"
	}
	return pb
}
