package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*Firestore)(nil)

// Firestore stores each collection as a top-level Firestore collection.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore checks connectivity with an empty transaction before
// returning the adapter.
func NewFirestore(ctx context.Context, client *firestore.Client) (*Firestore, error) {
	err := client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("firestore: could not connect: %w", err)
	}
	return &Firestore{client: client}, nil
}

func (s *Firestore) Close() error { return s.client.Close() }

func (s *Firestore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, map[string]any(fields)); err != nil {
		return "", fmt.Errorf("firestore: create %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *Firestore) Get(ctx context.Context, collection, id string) (Fields, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("firestore: get %s/%s: %w", collection, id, err)
	}
	return Fields(snap.Data()), nil
}

func (s *Firestore) Patch(ctx context.Context, collection, id string, fields Fields) error {
	if id == "" {
		return ErrNotFound
	}
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("firestore: update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Firestore) Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []Doc
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: query %s: %w", collection, err)
		}
		out = append(out, Doc{ID: snap.Ref.ID, Fields: Fields(snap.Data())})
	}
	return out, nil
}

// Delete uses an Exists precondition so a missing document reports
// ErrNotFound instead of succeeding silently.
func (s *Firestore) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return ErrNotFound
	}
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("firestore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
