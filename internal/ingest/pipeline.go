// Package ingest turns a publisher upload into a catalog book. The metadata
// record is created first and is visible immediately; content and cover are
// attached afterwards in a single patch. A failure after creation leaves the
// book pending (no content) rather than rolling it back.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/asset"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/store/catalog"
	"github.com/5w1tchy/folio-api/internal/validate"
)

const (
	maxTitle       = 200
	maxAuthor      = 200
	maxDescription = 5000
	maxGenre       = 100
)

// Catalog is the part of the catalog store ingestion writes to.
type Catalog interface {
	Create(ctx context.Context, nb catalog.NewBook) (string, error)
	Patch(ctx context.Context, id string, p catalog.AssetPatch) error
}

// BlobStore holds binary book files (PDF, EPUB).
type BlobStore interface {
	UploadResumable(ctx context.Context, objectKey, contentType string, body io.Reader, size int64, onProgress func(sent, total int64)) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// Metadata is the form input. Price is kept raw so that parsing policy
// lives in one place.
type Metadata struct {
	Title       string
	Author      string
	Description string
	Genre       string
	Price       string
}

type Request struct {
	Metadata
	Content *asset.File
	Cover   *asset.File
}

type Config struct {
	MaxDimension int
	Quality      float64
}

type Pipeline struct {
	catalog Catalog
	blobs   BlobStore
	cfg     Config
	log     *slog.Logger
}

// New builds a pipeline. blobs may be nil, in which case only plain-text
// content is accepted.
func New(c Catalog, blobs BlobStore, cfg Config) *Pipeline {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = asset.DefaultMaxDimension
	}
	if cfg.Quality <= 0 || cfg.Quality > 1 {
		cfg.Quality = asset.DefaultQuality
	}
	return &Pipeline{catalog: c, blobs: blobs, cfg: cfg, log: slog.Default()}
}

// ObjectKey is where a book's binary content is stored.
func ObjectKey(bookID, ext string) string {
	return fmt.Sprintf("books/%s/book.%s", bookID, ext)
}

// Ingest validates req, creates the book and attaches its assets. obs gets
// exactly one Completed or Failed call; a nil obs is treated as Discard.
func (p *Pipeline) Ingest(ctx context.Context, req Request, obs Observer) (string, error) {
	if obs == nil {
		obs = Discard
	}
	id, err := p.ingest(ctx, req, obs)
	if err != nil {
		obs.Failed(err)
		return id, err
	}
	obs.Completed(id)
	return id, nil
}

func (p *Pipeline) ingest(ctx context.Context, req Request, obs Observer) (string, error) {
	nb, err := p.validate(req)
	if err != nil {
		return "", err
	}

	id, err := p.catalog.Create(ctx, nb)
	if err != nil {
		return "", err
	}
	p.log.InfoContext(ctx, "book created", "book_id", id, "title", nb.Title)

	var (
		patch     catalog.AssetPatch
		uploadKey string
	)
	cleanup := func() {
		if uploadKey == "" {
			return
		}
		if err := p.blobs.DeleteObject(context.WithoutCancel(ctx), uploadKey); err != nil {
			p.log.WarnContext(ctx, "orphaned book file", "book_id", id, "key", uploadKey, "error", err)
		}
	}

	content := *req.Content
	if asset.IsText(content) {
		text, err := asset.ExtractText(content)
		if err != nil {
			return id, err
		}
		patch.TextContent = &text
		obs.Progress(Event{Stage: StageContent, Percent: 100})
	} else {
		uploadKey = ObjectKey(id, asset.BinaryExt(content))
		url, err := p.upload(ctx, uploadKey, content, obs)
		if err != nil {
			return id, err
		}
		patch.PDFURL = &url
	}

	if req.Cover != nil {
		img, err := asset.CompressImage(*req.Cover, p.cfg.MaxDimension, p.cfg.Quality)
		if err != nil {
			cleanup()
			return id, err
		}
		patch.Cover = &models.Cover{DataURL: img.DataURL, ContentType: img.ContentType}
		obs.Progress(Event{Stage: StageCover, Percent: 100})
	}

	if err := p.catalog.Patch(ctx, id, patch); err != nil {
		cleanup()
		p.log.WarnContext(ctx, "book left pending", "book_id", id, "error", err)
		return id, err
	}
	return id, nil
}

// validate runs every check that must pass before anything is written.
func (p *Pipeline) validate(req Request) (catalog.NewBook, error) {
	const op = "ingest.validate"

	title, err := validate.RequireBounded("title", req.Title, 1, maxTitle)
	if err != nil {
		return catalog.NewBook{}, apperr.Validation(op, "title", err.Error())
	}
	author, err := validate.RequireBounded("author", req.Author, 1, maxAuthor)
	if err != nil {
		return catalog.NewBook{}, apperr.Validation(op, "author", err.Error())
	}
	if req.Content == nil {
		return catalog.NewBook{}, apperr.Validation(op, "content", "a content file is required")
	}
	if req.Cover != nil && !asset.IsImage(*req.Cover) {
		return catalog.NewBook{}, &apperr.Error{Kind: apperr.KindValidation, Op: op, Field: "cover",
			Msg: "cover must be an image", Err: asset.ErrInvalidFormat}
	}
	switch c := *req.Content; {
	case asset.IsText(c):
	case asset.IsBinaryContent(c) && p.blobs != nil:
	default:
		return catalog.NewBook{}, &apperr.Error{Kind: apperr.KindValidation, Op: op, Field: "content",
			Msg: "content must be a plain-text, PDF or EPUB file", Err: asset.ErrInvalidFormat}
	}

	return catalog.NewBook{
		Title:       title,
		Author:      author,
		Description: validate.Optional(req.Description, maxDescription),
		Genre:       validate.Optional(req.Genre, maxGenre),
		Price:       validate.ParsePrice(req.Price),
	}, nil
}

func (p *Pipeline) upload(ctx context.Context, key string, f asset.File, obs Observer) (string, error) {
	const op = "ingest.upload"
	tr := &progressTracker{obs: obs, stage: StageContent}
	url, err := p.blobs.UploadResumable(ctx, key, f.MediaType(), f.Body, f.Size, func(sent, total int64) {
		if total > 0 {
			tr.report(float64(sent) / float64(total) * 100)
		}
	})
	if err != nil {
		return "", apperr.Store(op, err)
	}
	tr.report(100)
	return url, nil
}
