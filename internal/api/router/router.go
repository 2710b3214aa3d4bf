package router

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/5w1tchy/folio-api/internal/access"
	"github.com/5w1tchy/folio-api/internal/api/handlers/books"
	"github.com/5w1tchy/folio-api/internal/api/handlers/userbooks"
	"github.com/5w1tchy/folio-api/internal/api/httpx"
	mw "github.com/5w1tchy/folio-api/internal/api/middlewares"
	"github.com/5w1tchy/folio-api/internal/auth"
	"github.com/5w1tchy/folio-api/internal/entitlement"
	"github.com/5w1tchy/folio-api/internal/ingest"
	"github.com/5w1tchy/folio-api/internal/metrics/viewqueue"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/validate"
)

// DefaultUploadLimit caps ingestion uploads; MAX_UPLOAD_SIZE overrides it.
const DefaultUploadLimit = 100 << 20

// Deps are the services behind the HTTP surface.
type Deps struct {
	Catalog      books.Catalog
	Remover      books.Remover // nil disables book deletion
	Entitlements *entitlement.Service
	Gate         *access.Gate
	Pipeline     *ingest.Pipeline
	Files        books.URLResolver // nil without a binary store
	Views        *viewqueue.Queue
	Reads        books.ReadCounter // nil disables /books/popular
	Auth         *auth.Handler
	Redis        redis.Cmdable
}

func Router(d Deps) http.Handler {
	mux := http.NewServeMux()

	signedIn := mw.RequireAccess(d.Gate)
	publisher := mw.RequireAccess(d.Gate, models.RolePublisher)
	body := mw.BodySizeLimit
	uploads := mw.BodyLimit(int64(validate.EnvInt("MAX_UPLOAD_SIZE", DefaultUploadLimit)))

	// Root
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, map[string]string{"service": "folio-api"})
	})

	// Accounts
	h := d.Auth
	mux.Handle("POST /auth/register", body(http.HandlerFunc(h.Register)))
	mux.Handle("POST /auth/login", mw.LoginRateLimit(d.Redis, body(http.HandlerFunc(h.Login))))
	mux.Handle("POST /auth/refresh", body(http.HandlerFunc(h.Refresh)))
	mux.Handle("POST /auth/logout", body(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/me", signedIn(http.HandlerFunc(h.Me)))
	mux.Handle("POST /auth/logout-all", signedIn(http.HandlerFunc(h.LogoutAll)))
	mux.Handle("POST /auth/change-password", signedIn(body(http.HandlerFunc(h.ChangePassword))))

	// Catalog (public)
	mux.Handle("GET /books", books.List(d.Catalog))
	mux.Handle("GET /genres", books.Genres(d.Catalog))
	mux.Handle("GET /books/suggest", books.Suggest(d.Catalog))
	if d.Reads != nil {
		mux.Handle("GET /books/popular", books.Popular(d.Catalog, d.Reads))
	}
	mux.Handle("GET /books/{id}", books.Get(d.Catalog))
	mux.Handle("GET /books/{id}/cover", books.Cover(d.Catalog))

	// Content: the gate is applied in the handler, it needs the book id
	mux.Handle("GET /books/{id}/content", books.Content(d.Catalog, d.Gate, d.Files, d.Views))

	// Publishing
	mux.Handle("POST /publisher/books", publisher(uploads(books.Ingest(d.Pipeline))))
	if d.Remover != nil {
		mux.Handle("DELETE /publisher/books/{id}", publisher(books.Delete(d.Remover)))
	}

	// Purchases
	mux.Handle("POST /books/{id}/purchase", signedIn(userbooks.Purchase(d.Entitlements)))
	mux.Handle("GET /user/books", signedIn(userbooks.ListOwned(d.Entitlements)))
	mux.Handle("GET /user/purchases", signedIn(userbooks.Purchases(d.Entitlements)))
	mux.Handle("GET /user/books/{id}/owned", signedIn(userbooks.Owned(d.Entitlements)))

	return mux
}
