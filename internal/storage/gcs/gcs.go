package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

const publicURL = "https://storage.googleapis.com/%s/%s"

// DefaultChunkSize is the resumable upload chunk; progress is reported once
// per chunk.
const DefaultChunkSize = 8 << 20

// Bucket uploads book files to a Google Cloud Storage bucket.
type Bucket struct {
	handle    *storage.BucketHandle
	name      string
	ChunkSize int
	// PublicRead grants allUsers read on each object. Leave it off for
	// buckets with uniform bucket-level access.
	PublicRead bool
}

// NewFromEnv opens the bucket named by GCS_BUCKET with default credentials
// and fails fast when it does not exist.
func NewFromEnv(ctx context.Context) (*Bucket, error) {
	name := os.Getenv("GCS_BUCKET")
	if name == "" {
		return nil, errors.New("gcs: GCS_BUCKET is not set")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	b := &Bucket{
		handle:     client.Bucket(name),
		name:       name,
		ChunkSize:  DefaultChunkSize,
		PublicRead: os.Getenv("GCS_PUBLIC_READ") == "true",
	}
	if _, err := b.handle.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("gcs: bucket %q does not exist", name)
		}
		return nil, fmt.Errorf("gcs: could not get bucket: %w", err)
	}
	return b, nil
}

// UploadResumable writes body to objectKey using a resumable session,
// reporting progress at each chunk boundary and once more at completion.
func (b *Bucket) UploadResumable(ctx context.Context, objectKey, contentType string, body io.Reader, size int64, onProgress func(sent, total int64)) (string, error) {
	var last int64
	report := func(n int64) {
		last = n
		if onProgress != nil {
			onProgress(n, max(size, n))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.handle.Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	w.ChunkSize = b.ChunkSize
	w.ProgressFunc = report
	if b.PublicRead {
		w.ACL = []storage.ACLRule{{Entity: storage.AllUsers, Role: storage.RoleReader}}
	}

	n, err := io.Copy(w, body)
	if err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("gcs: write %s: %w", objectKey, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: close %s: %w", objectKey, err)
	}
	if last < n {
		report(n)
	}
	return fmt.Sprintf(publicURL, b.name, objectKey), nil
}

// DeleteObject removes an uploaded object.
func (b *Bucket) DeleteObject(ctx context.Context, objectKey string) error {
	if err := b.handle.Object(objectKey).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete %s: %w", objectKey, err)
	}
	return nil
}

// ResolveURL returns stored URLs unchanged; objects are served from their
// public storage.googleapis.com address.
func (b *Bucket) ResolveURL(_ context.Context, stored string) (string, error) {
	return stored, nil
}
