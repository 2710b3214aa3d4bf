package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
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
	mw "github.com/5w1tchy/folio-api/internal/api/middlewares"
	"github.com/5w1tchy/folio-api/internal/auth"
	"github.com/5w1tchy/folio-api/internal/entitlement"
	"github.com/5w1tchy/folio-api/internal/ingest"
	"github.com/5w1tchy/folio-api/internal/metrics/viewqueue"
	"github.com/5w1tchy/folio-api/internal/models"
	jwtutil "github.com/5w1tchy/folio-api/internal/security/jwt"
	"github.com/5w1tchy/folio-api/internal/session"
	"github.com/5w1tchy/folio-api/internal/store/catalog"
	"github.com/5w1tchy/folio-api/internal/store/docstore"
	"github.com/5w1tchy/folio-api/internal/store/userbooks"
	"github.com/5w1tchy/folio-api/pkg/utils"
)

// memUsers is an in-memory account store that also serves roles.
type memUsers struct {
	mu  sync.Mutex
	m   map[string]auth.User
	seq int
}

func (s *memUsers) CreateUser(_ context.Context, email, username, hash string, role models.Role) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	u := auth.User{ID: fmt.Sprintf("u%d", s.seq), Email: email, Username: username,
		PasswordHash: hash, Role: role, TokenVersion: 1, CreatedAt: time.Now()}
	s.m[u.ID] = u
	return u, nil
}

func (s *memUsers) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.m {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, sql.ErrNoRows
}

func (s *memUsers) FindUserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.m[id]
	if !ok {
		return auth.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *memUsers) UpdateUserPasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.m[id]
	u.PasswordHash = hash
	s.m[id] = u
	return nil
}

func (s *memUsers) TokenVersion(ctx context.Context, id string) (int, error) {
	u, err := s.FindUserByID(ctx, id)
	return u.TokenVersion, err
}

func (s *memUsers) BumpTokenVersion(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.m[id]
	u.TokenVersion++
	s.m[id] = u
	return u.TokenVersion, nil
}

func (s *memUsers) RoleOf(ctx context.Context, id string) (models.Role, error) {
	u, err := s.FindUserByID(ctx, id)
	if err != nil {
		return "", session.ErrNoRole
	}
	return u.Role, nil
}

type memTokens struct {
	mu sync.Mutex
	m  map[string][2]any
	n  int
}

func (t *memTokens) Issue(_ context.Context, userID string, tv int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n++
	tok := fmt.Sprintf("rt-%d", t.n)
	t.m[tok] = [2]any{userID, tv}
	return tok, nil
}

func (t *memTokens) Consume(_ context.Context, tok string) (string, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[tok]
	if !ok {
		return "", 0, auth.ErrInvalidRefresh
	}
	delete(t.m, tok)
	return v[0].(string), v[1].(int), nil
}

func (t *memTokens) Revoke(_ context.Context, tok string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, tok)
	return nil
}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	jwtutil.Configure(jwtutil.Config{Secret: []byte("router-test-secret-router-test-secret")})

	docs := docstore.NewMemory()
	books := catalog.New(docs)
	ents := entitlement.NewService(userbooks.New(docs), books)
	views := viewqueue.Start(viewqueue.LogSink, 16, 1)
	t.Cleanup(views.Shutdown)

	users := &memUsers{m: map[string]auth.User{}}
	broker := session.NewBroker()
	roles := session.NewRoleResolver(users, nil, time.Minute)
	roles.Watch(broker)

	h := Router(Deps{
		Catalog:      books,
		Remover:      books,
		Entitlements: ents,
		Gate:         access.New(ents),
		Pipeline:     ingest.New(books, nil, ingest.Config{}),
		Views:        views,
		Auth:         auth.New(users, &memTokens{m: map[string][2]any{}}, broker),
	})
	return utils.ApplyMiddleware(h, mw.RequestID, mw.Recovery, mw.Authenticate(users, roles))
}

func call(h http.Handler, req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, email string, role models.Role) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"correct horse battery","role":%q}`, email, role)
	rec := call(h, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func textUpload(t *testing.T, title, text string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", title))
	require.NoError(t, w.WriteField("author", "A. Writer"))
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="content"; filename="book.txt"`)
	hdr.Set("Content-Type", "text/plain")
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte(text))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/publisher/books", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestPublishPurchaseRead(t *testing.T) {
	h := newServer(t)
	pub := register(t, h, "pub@example.com", models.RolePublisher)
	rdr := register(t, h, "reader@example.com", models.RoleReader)

	rec := call(h, textUpload(t, "Winter Notes", "It was cold."), rdr)
	assert.Equal(t, http.StatusForbidden, rec.Code, "readers cannot publish")

	rec = call(h, textUpload(t, "Winter Notes", "It was cold."), pub)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct{ ID string } `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID
	require.NotEmpty(t, id)

	rec = call(h, httptest.NewRequest(http.MethodGet, "/books/"+id+"/content", nil), rdr)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "/books/"+id+"/purchase", rec.Header().Get("Location"))

	rec = call(h, httptest.NewRequest(http.MethodPost, "/books/"+id+"/purchase", nil), rdr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(h, httptest.NewRequest(http.MethodGet, "/books/"+id+"/content", nil), rdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "It was cold.", rec.Body.String())

	rec = call(h, httptest.NewRequest(http.MethodGet, "/user/books", nil), rdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Winter Notes")
	assert.NotContains(t, rec.Body.String(), "It was cold.")
}

func TestDeletedBookLeavesLibrary(t *testing.T) {
	h := newServer(t)
	pub := register(t, h, "pub@example.com", models.RolePublisher)
	rdr := register(t, h, "reader@example.com", models.RoleReader)

	rec := call(h, textUpload(t, "Short Lived", "Gone soon."), pub)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct{ ID string } `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID

	rec = call(h, httptest.NewRequest(http.MethodPost, "/books/"+id+"/purchase", nil), rdr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(h, httptest.NewRequest(http.MethodDelete, "/publisher/books/"+id, nil), rdr)
	assert.Equal(t, http.StatusForbidden, rec.Code, "readers cannot delete")

	rec = call(h, httptest.NewRequest(http.MethodDelete, "/publisher/books/"+id, nil), pub)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = call(h, httptest.NewRequest(http.MethodGet, "/user/books", nil), rdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Short Lived")

	rec = call(h, httptest.NewRequest(http.MethodGet, "/user/purchases", nil), rdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id, "the purchase record survives")

	rec = call(h, httptest.NewRequest(http.MethodGet, "/books/"+id, nil), rdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnonymousAndPublicRoutes(t *testing.T) {
	h := newServer(t)

	rec := call(h, httptest.NewRequest(http.MethodGet, "/books", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(h, httptest.NewRequest(http.MethodGet, "/genres", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(h, httptest.NewRequest(http.MethodGet, "/user/books", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = call(h, httptest.NewRequest(http.MethodGet, "/auth/me", nil), "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(h, httptest.NewRequest(http.MethodDelete, "/books", nil), "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
