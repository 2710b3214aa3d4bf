package models

import "time"

// Book is a catalog item. Content and cover are filled in by ingestion after
// the metadata record exists, so a freshly created book has neither.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	Price       *float64  `json:"price"`
	TextContent *string   `json:"textContent"`
	PDFURL      *string   `json:"pdfURL"`
	Cover       *Cover    `json:"cover,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Cover is either an inline data URL with its content type or an external URL.
type Cover struct {
	DataURL     string `json:"dataURL,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Pending reports whether ingestion has not attached any content yet.
func (b Book) Pending() bool {
	return b.TextContent == nil && b.PDFURL == nil
}

// Entitlement records that a user may read a book.
type Entitlement struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	BookID      string    `json:"bookId"`
	PurchasedAt time.Time `json:"purchasedAt"`
}
