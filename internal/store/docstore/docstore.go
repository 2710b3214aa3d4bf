// Package docstore is the narrow document-store port the catalog and
// entitlement stores are built on: flat collections of field maps keyed by
// generated ids, with single-document atomic writes, deletes and equality
// queries.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collections used by the service.
const (
	Books     = "books"
	UserBooks = "userBooks"
)

var ErrNotFound = errors.New("docstore: document not found")

// Fields is a document body. Values are restricted to JSON-compatible
// scalars (string, float64, int, bool, nil) so every adapter round-trips them.
type Fields map[string]any

// Doc is a stored document.
type Doc struct {
	ID     string
	Fields Fields
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) Filter { return Filter{Field: field, Value: value} }

// Store is implemented by the Postgres, Firestore and in-memory adapters.
type Store interface {
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Get(ctx context.Context, collection, id string) (Fields, error)
	// Patch merges fields into an existing document in one atomic write.
	// A nil value stores an explicit null.
	Patch(ctx context.Context, collection, id string, fields Fields) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error)
	// Delete removes one document, or returns ErrNotFound. Documents in
	// other collections that refer to it are left alone.
	Delete(ctx context.Context, collection, id string) error
}

// String returns the string value of key, or "" when absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// StringPtr distinguishes an absent/null field from an empty string.
func (f Fields) StringPtr(key string) *string {
	s, ok := f[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// Float returns a numeric field regardless of how the adapter decoded it.
func (f Fields) Float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Time parses an RFC 3339 timestamp field. Firestore may hand back a native
// time.Time, which is accepted as well.
func (f Fields) Time(key string) (time.Time, error) {
	switch v := f[key].(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	default:
		return time.Time{}, fmt.Errorf("docstore: field %q is not a timestamp", key)
	}
}

// Timestamp formats t the way every adapter stores it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func clone(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
