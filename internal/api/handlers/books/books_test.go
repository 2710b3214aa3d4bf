package books

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5w1tchy/folio-api/internal/access"
	"github.com/5w1tchy/folio-api/internal/ingest"
	"github.com/5w1tchy/folio-api/internal/metrics/viewqueue"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/session"
	"github.com/5w1tchy/folio-api/internal/store/catalog"
	"github.com/5w1tchy/folio-api/internal/store/docstore"
)

type owned map[[2]string]bool

func (o owned) Owns(_ context.Context, u, b string) (bool, error) { return o[[2]string{u, b}], nil }

type signer struct{}

func (signer) ResolveURL(_ context.Context, stored string) (string, error) {
	return strings.Replace(stored, "s3://bucket/", "https://signed.example/", 1) + "?sig=1", nil
}

type reads struct {
	mu sync.Mutex
	n  []viewqueue.Event
}

func (r *reads) WriteBatch(_ context.Context, b []viewqueue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n = append(r.n, b...)
	return nil
}

type counter []viewqueue.Count

func (c counter) MostRead(_ context.Context, _ time.Time, limit int) ([]viewqueue.Count, error) {
	if len(c) > limit {
		return c[:limit], nil
	}
	return c, nil
}

type env struct {
	books *catalog.Store
	owns  owned
	reads *reads
	views *viewqueue.Queue
	mux   *http.ServeMux

	counter counter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	books := catalog.New(docstore.NewMemory())
	e := &env{books: books, owns: owned{}, reads: &reads{}}
	e.counter = counter{{BookID: "gone", Reads: 12}}
	e.views = viewqueue.Start(e.reads, 16, 1)
	t.Cleanup(e.views.Shutdown)

	gate := access.New(e.owns)
	mux := http.NewServeMux()
	mux.Handle("GET /books", List(books))
	mux.Handle("GET /genres", Genres(books))
	mux.Handle("GET /books/suggest", Suggest(books))
	mux.Handle("GET /books/popular", Popular(books, e.counter))
	mux.Handle("GET /books/{id}", Get(books))
	mux.Handle("GET /books/{id}/cover", Cover(books))
	mux.Handle("GET /books/{id}/content", Content(books, gate, signer{}, e.views))
	mux.Handle("POST /publisher/books", Ingest(ingest.New(books, nil, ingest.Config{})))
	mux.Handle("DELETE /publisher/books/{id}", Delete(books))
	e.mux = mux
	return e
}

func (e *env) do(req *http.Request, s *session.Session) *httptest.ResponseRecorder {
	if s != nil {
		req = req.WithContext(session.NewContext(req.Context(), *s))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

type part struct {
	name, filename, contentType string
	body                        []byte
}

func upload(t *testing.T, fields map[string]string, files ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+f.name+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, _ = w.Write(f.body)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/publisher/books", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 300, 200))))
	return buf.Bytes()
}

func publisher() *session.Session {
	s := session.Authenticated(session.Identity{UserID: "pub-1"}).WithRole(models.RolePublisher)
	return &s
}

func reader(id string) *session.Session {
	s := session.Authenticated(session.Identity{UserID: id}).WithRole(models.RoleReader)
	return &s
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.Equal(t, "success", env.Status)
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func TestIngestThenBrowse(t *testing.T) {
	e := newEnv(t)

	rec := e.do(upload(t,
		map[string]string{"title": "Autumn Tales", "author": "J. Doe", "genre": "Fiction", "price": "4.99"},
		part{"content", "autumn.txt", "text/plain", []byte("Once upon a time.")},
		part{"cover", "cover.png", "image/png", pngBytes(t)},
	), publisher())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct{ ID string }
	decodeData(t, rec, &created)
	assert.Equal(t, "/books/"+created.ID, rec.Header().Get("Location"))

	rec = e.do(httptest.NewRequest("GET", "/books/"+created.ID, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pb PublicBook
	decodeData(t, rec, &pb)
	assert.Equal(t, "Autumn Tales", pb.Title)
	assert.False(t, pb.Pending)
	assert.Equal(t, "text", pb.Format)
	assert.Equal(t, "/books/"+created.ID+"/cover", pb.CoverURL)
	require.NotNil(t, pb.Price)
	assert.InDelta(t, 4.99, *pb.Price, 1e-9)
	assert.NotContains(t, rec.Body.String(), "Once upon a time.", "content must not leak through metadata")

	rec = e.do(httptest.NewRequest("GET", "/books/"+created.ID+"/cover", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "image/"))
	assert.NotZero(t, rec.Body.Len())

	var list []PublicBook
	rec = e.do(httptest.NewRequest("GET", "/books?genre=fiction", nil), nil)
	decodeData(t, rec, &list)
	assert.Len(t, list, 1)

	rec = e.do(httptest.NewRequest("GET", "/books?genre=poetry", nil), nil)
	decodeData(t, rec, &list)
	assert.Empty(t, list)
}

func TestIngest_ValidationError(t *testing.T) {
	e := newEnv(t)
	rec := e.do(upload(t, map[string]string{"author": "J. Doe"},
		part{"content", "a.txt", "text/plain", []byte("x")}), publisher())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"title"`)

	rec = e.do(httptest.NewRequest(http.MethodPost, "/publisher/books", strings.NewReader("{}")), publisher())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func readFrames(t *testing.T, rec *httptest.ResponseRecorder) []frame {
	t.Helper()
	var out []frame
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var f frame
		require.NoError(t, json.Unmarshal(sc.Bytes(), &f))
		out = append(out, f)
	}
	return out
}

func TestIngest_StreamsProgress(t *testing.T) {
	e := newEnv(t)
	req := upload(t, map[string]string{"title": "Streamed", "author": "A"},
		part{"content", "s.txt", "text/plain", []byte("hello")},
		part{"cover", "c.png", "image/png", pngBytes(t)})
	req.Header.Set("Accept", "application/x-ndjson")

	rec := e.do(req, publisher())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	frames := readFrames(t, rec)
	require.Len(t, frames, 3)
	assert.Equal(t, frame{Type: "progress", Stage: ingest.StageContent, Percent: 100}, frames[0])
	assert.Equal(t, frame{Type: "progress", Stage: ingest.StageCover, Percent: 100}, frames[1])
	assert.Equal(t, "completed", frames[2].Type)
	assert.NotEmpty(t, frames[2].BookID)
}

func TestIngest_StreamsFailure(t *testing.T) {
	e := newEnv(t)
	req := upload(t, map[string]string{"title": "T", "author": "A"},
		part{"content", "book.pdf", "application/pdf", []byte("%PDF-1.7")})
	req.Header.Set("Accept", "application/x-ndjson")

	frames := readFrames(t, e.do(req, publisher()))
	require.Len(t, frames, 1)
	assert.Equal(t, "failed", frames[0].Type)
	require.NotNil(t, frames[0].Problem)
	assert.Equal(t, http.StatusBadRequest, frames[0].Problem.Status)
}

func TestContent_Gate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, err := e.books.Create(ctx, catalog.NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)
	text := "chapter one"
	require.NoError(t, e.books.Patch(ctx, id, catalog.AssetPatch{TextContent: &text}))
	e.owns[[2]string{"owner", id}] = true
	path := "/books/" + id + "/content"

	rec := e.do(httptest.NewRequest("GET", path, nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = e.do(httptest.NewRequest("GET", path, nil), reader("stranger"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "/books/"+id+"/purchase", rec.Header().Get("Location"))

	rec = e.do(httptest.NewRequest("GET", path, nil), reader("owner"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, text, rec.Body.String())

	e.views.Shutdown()
	require.Len(t, e.reads.n, 1)
	assert.Equal(t, viewqueue.Event{BookID: id, UserID: "owner", ReadAt: e.reads.n[0].ReadAt}, e.reads.n[0])
}

func TestContent_FileRedirectsToSignedURL(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, err := e.books.Create(ctx, catalog.NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)
	url := "s3://bucket/books/" + id + "/book.pdf"
	require.NoError(t, e.books.Patch(ctx, id, catalog.AssetPatch{PDFURL: &url}))
	e.owns[[2]string{"owner", id}] = true

	rec := e.do(httptest.NewRequest("GET", "/books/"+id+"/content", nil), reader("owner"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://signed.example/books/"+id+"/book.pdf?sig=1", rec.Header().Get("Location"))
}

func TestContent_PendingAndMissing(t *testing.T) {
	e := newEnv(t)
	id, err := e.books.Create(context.Background(), catalog.NewBook{Title: "T", Author: "A"})
	require.NoError(t, err)
	e.owns[[2]string{"owner", id}] = true

	rec := e.do(httptest.NewRequest("GET", "/books/"+id+"/content", nil), reader("owner"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(httptest.NewRequest("GET", "/books/nope/content", nil), reader("owner"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCover_MissingAndExternal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bare, _ := e.books.Create(ctx, catalog.NewBook{Title: "Bare", Author: "A"})
	ext, _ := e.books.Create(ctx, catalog.NewBook{Title: "Ext", Author: "A"})
	require.NoError(t, e.books.Patch(ctx, ext, catalog.AssetPatch{Cover: &models.Cover{URL: "https://img.example/c.jpg"}}))

	rec := e.do(httptest.NewRequest("GET", "/books/"+bare+"/cover", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(httptest.NewRequest("GET", "/books/"+ext+"/cover", nil), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://img.example/c.jpg", rec.Header().Get("Location"))
}

func TestGenres_MergesCase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, g := range []string{"Poetry", "poetry", "Essays", ""} {
		_, err := e.books.Create(ctx, catalog.NewBook{Title: "T", Author: "A", Genre: g})
		require.NoError(t, err)
	}

	rec := e.do(httptest.NewRequest("GET", "/genres", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []Genre
	decodeData(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "Essays", got[0].Name)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, "poetry", got[1].Slug)
	assert.Equal(t, 2, got[1].Count)
}

func TestSuggest_RanksTitlesAndAuthors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, nb := range []catalog.NewBook{
		{Title: "Émile", Author: "Jean-Jacques Rousseau"},
		{Title: "The Social Contract", Author: "Jean-Jacques Rousseau"},
		{Title: "Emma", Author: "Jane Austen"},
	} {
		_, err := e.books.Create(ctx, nb)
		require.NoError(t, err)
	}

	rec := e.do(httptest.NewRequest("GET", "/books/suggest?q=emile", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []SuggestItem
	decodeData(t, rec, &got)
	require.NotEmpty(t, got)
	assert.Equal(t, "Émile", got[0].Title)

	rec = e.do(httptest.NewRequest("GET", "/books/suggest?q=rousseau", nil), nil)
	decodeData(t, rec, &got)
	require.Len(t, got, 3)
	var author *SuggestItem
	for i := range got {
		if got[i].Type == "author" {
			author = &got[i]
		}
	}
	require.NotNil(t, author)
	assert.Equal(t, 2, author.BooksCount)

	rec = e.do(httptest.NewRequest("GET", "/books/suggest?q=e", nil), nil)
	decodeData(t, rec, &got)
	assert.Empty(t, got)
}

func TestPopular_SkipsDeletedBooks(t *testing.T) {
	e := newEnv(t)
	id, err := e.books.Create(context.Background(), catalog.NewBook{Title: "Hit", Author: "A"})
	require.NoError(t, err)
	e.counter = append(e.counter, viewqueue.Count{BookID: id, Reads: 3})
	// the handler captured the old slice; rebuild the route
	e.mux = http.NewServeMux()
	e.mux.Handle("GET /books/popular", Popular(e.books, e.counter))

	rec := e.do(httptest.NewRequest("GET", "/books/popular?days=30", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []PopularBook
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "Hit", got[0].Title)
	assert.EqualValues(t, 3, got[0].Reads)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	id, err := e.books.Create(context.Background(), catalog.NewBook{Title: "Spring Verses", Author: "A. Poet"})
	require.NoError(t, err)

	rec := e.do(httptest.NewRequest(http.MethodDelete, "/publisher/books/"+id, nil), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/books/"+id, nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodDelete, "/publisher/books/"+id, nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
