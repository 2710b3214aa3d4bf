package books

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/asset"
	"github.com/5w1tchy/folio-api/internal/ingest"
	"github.com/5w1tchy/folio-api/internal/session"
)

// Ingester runs the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request, obs ingest.Observer) (string, error)
}

// multipartMemory is how much of an upload is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

type frame struct {
	Type    string          `json:"type"`
	Stage   ingest.Stage    `json:"stage,omitempty"`
	Percent float64         `json:"percent,omitempty"`
	BookID  string          `json:"bookId,omitempty"`
	Problem *apperr.Problem `json:"problem,omitempty"`
}

// Ingest: POST /publisher/books (multipart/form-data)
// Fields: title, author, description, genre, price; files: content, cover.
// With Accept: application/x-ndjson progress is streamed one JSON object
// per line, ending with a "completed" or "failed" frame.
func Ingest(p Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, cleanup, err := parseUpload(r)
		if err != nil {
			apperr.WriteError(w, r, err)
			return
		}
		defer cleanup()

		ctx := r.Context()
		logObs := ingest.LogObserver{
			Ctx:    ctx,
			Logger: slog.Default().With("publisher_id", session.FromContext(ctx).UserID()),
		}

		if !httpx.WantsNDJSON(r) {
			id, err := p.Ingest(ctx, req, logObs)
			if err != nil {
				if id != "" {
					w.Header().Set("Content-Location", "/books/"+id)
				}
				apperr.WriteError(w, r, err)
				return
			}
			w.Header().Set("Location", "/books/"+id)
			httpx.WriteJSON(w, http.StatusCreated, map[string]any{
				"status": "success",
				"data":   map[string]string{"id": id},
			})
			return
		}

		stream := httpx.NewNDJSON(w, http.StatusOK)
		_, _ = p.Ingest(ctx, req, ingest.Tee(logObs, ingest.ObserverFuncs{
			OnProgress: func(e ingest.Event) {
				_ = stream.Send(frame{Type: "progress", Stage: e.Stage, Percent: e.Percent})
			},
			OnCompleted: func(id string) {
				_ = stream.Send(frame{Type: "completed", BookID: id})
			},
			OnFailed: func(err error) {
				pr := apperr.ProblemFor(err)
				pr.Instance = r.URL.Path
				pr.RequestID = r.Header.Get("X-Request-ID")
				_ = stream.Send(frame{Type: "failed", Problem: &pr})
			},
		}))
	}
}

func parseUpload(r *http.Request) (ingest.Request, func(), error) {
	const op = "books.ingest"
	noop := func() {}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return ingest.Request{}, noop, apperr.Validation(op, "content", "upload is too large")
		}
		return ingest.Request{}, noop, apperr.Validation(op, "", "expected multipart/form-data")
	}

	var open []io.Closer
	cleanup := func() {
		for _, c := range open {
			_ = c.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	req := ingest.Request{Metadata: ingest.Metadata{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Description: r.FormValue("description"),
		Genre:       r.FormValue("genre"),
		Price:       strings.TrimSpace(r.FormValue("price")),
	}}

	for field, dst := range map[string]**asset.File{"content": &req.Content, "cover": &req.Cover} {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		f, c, err := openPart(field, headers[0])
		if err != nil {
			cleanup()
			return ingest.Request{}, noop, err
		}
		open = append(open, c)
		*dst = f
	}
	return req, cleanup, nil
}

func openPart(field string, fh *multipart.FileHeader) (*asset.File, io.Closer, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, apperr.Validation("books.ingest", field, "unreadable file part")
	}
	return &asset.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, f, nil
}
