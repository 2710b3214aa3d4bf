package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/5w1tchy/folio-api/internal/access"
	"github.com/5w1tchy/folio-api/internal/api/handlers/books"
	mw "github.com/5w1tchy/folio-api/internal/api/middlewares"
	"github.com/5w1tchy/folio-api/internal/api/router"
	"github.com/5w1tchy/folio-api/internal/asset"
	"github.com/5w1tchy/folio-api/internal/auth"
	"github.com/5w1tchy/folio-api/internal/entitlement"
	"github.com/5w1tchy/folio-api/internal/ingest"
	"github.com/5w1tchy/folio-api/internal/maintenance"
	"github.com/5w1tchy/folio-api/internal/metrics/viewqueue"
	"github.com/5w1tchy/folio-api/internal/repository/sqlconnect"
	jwtutil "github.com/5w1tchy/folio-api/internal/security/jwt"
	"github.com/5w1tchy/folio-api/internal/session"
	"github.com/5w1tchy/folio-api/internal/storage/gcs"
	s3store "github.com/5w1tchy/folio-api/internal/storage/s3"
	"github.com/5w1tchy/folio-api/internal/store/catalog"
	"github.com/5w1tchy/folio-api/internal/store/dbx"
	"github.com/5w1tchy/folio-api/internal/store/docstore"
	"github.com/5w1tchy/folio-api/internal/store/userbooks"
	"github.com/5w1tchy/folio-api/internal/validate"
	"github.com/5w1tchy/folio-api/pkg/utils"
)

func main() {

	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()})))

	if err := validate.Env(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	for _, w := range validate.HardeningWarnings(os.Getenv("APP_ENV")) {
		log.Printf("[Config] %s", w)
	}
	jwtutil.Configure(jwtutil.LoadConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := newRedis()
	// Fail fast if Redis isn’t reachable
	if err := validate.PingRedis(rdb, 3*time.Second); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	defer rdb.Close()
	fmt.Println("✅ Connected to Redis")

	// Accounts and read events always live in Postgres.
	db, err := sqlconnect.ConnectDB(ctx)
	if err != nil {
		log.Fatalf("Postgres connection failed: %v", err)
	}
	defer db.Close()
	fmt.Println("✅ Connected to Postgres")

	docs, closeDocs := openCatalog(ctx, db)
	defer closeDocs()

	if err := migrate(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	blobs, files := openBlobs(ctx)

	// Domain services
	bookStore := catalog.New(docs)
	listings := catalog.NewCached(bookStore, rdb)
	ents := entitlement.NewService(userbooks.New(docs), bookStore)
	gate := access.New(ents)
	pipeline := ingest.New(listings, blobs, ingest.Config{
		MaxDimension: validate.EnvInt("COVER_MAX_DIMENSION", asset.DefaultMaxDimension),
		Quality:      validate.EnvFloat("COVER_QUALITY", asset.DefaultQuality),
	})

	users := auth.NewSQLStore(db)
	broker := session.NewBroker()
	roles := session.NewRoleResolver(users, session.NewRedisRoleCache(rdb), validate.EnvDuration("ROLE_CACHE_TTL", "10m"))
	defer roles.Watch(broker)()

	views := viewqueue.Start(viewqueue.SQLSink{DB: db}, 10000, 2)
	defer views.Shutdown()

	maintenance.StartPendingReport(ctx, bookStore,
		validate.EnvDuration("PENDING_REPORT_AFTER", "24h"),
		envOr("PENDING_REPORT_AT", "03:00"), envOr("PENDING_REPORT_TZ", "UTC"))

	tb := mw.NewTokenBucket(rdb, validate.EnvFloat("RATE_LIMIT_RPS", 5), validate.EnvInt("RATE_LIMIT_BURST", 20))
	sw := mw.NewSlidingWindow(rdb, validate.EnvInt("RATE_LIMIT_HOURLY", 3000), time.Hour)

	secureMux := utils.ApplyMiddleware(
		router.Router(router.Deps{
			Catalog:      listings,
			Remover:      listings,
			Entitlements: ents,
			Gate:         gate,
			Pipeline:     pipeline,
			Files:        files,
			Views:        views,
			Reads:        viewqueue.SQLReads{DB: db},
			Auth:         auth.New(users, auth.NewRedisRefreshStore(rdb), broker),
			Redis:        rdb,
		}),
		mw.RequestID,
		mw.AccessLog(slog.Default()),
		mw.Recovery,
		mw.Cors(mw.AllowedOrigins()),
		mw.ResponseTimeMiddleware,
		mw.Compression,
		mw.HPP(mw.StorefrontParams()),
		mw.Authenticate(users, roles),
		mw.RateLimit(tb, mw.PerUserKey("tb")),
		mw.RateLimit(sw, mw.PerIPKey("sw")),
		mw.SecurityHeaders,
	)

	server := &http.Server{
		Addr:              ":" + strings.TrimPrefix(envOr("PORT", "3000"), ":"),
		Handler:           secureMux,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Server] shutdown: %v", err)
		}
	}()

	fmt.Println("Server is running on port:", server.Addr)
	cert, key := os.Getenv("TLS_CERT_FILE"), os.Getenv("TLS_KEY_FILE")
	if cert != "" && key != "" {
		err = server.ListenAndServeTLS(cert, key)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalln("Error starting server:", err)
	}
	log.Println("[Server] stopped")
}

func newRedis() *redis.Client {
	if url := os.Getenv("UPSTASH_REDIS_URL"); url != "" {
		// Path A: full Upstash URL (recommended)
		opt, err := redis.ParseURL(url) // e.g. rediss://default:<token>@host:port
		if err != nil {
			log.Fatalf("invalid UPSTASH_REDIS_URL: %v", err)
		}
		if opt.TLSConfig == nil && strings.HasPrefix(url, "rediss://") {
			opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opt.DialTimeout = 5 * time.Second
		opt.ReadTimeout = 1 * time.Second
		opt.WriteTimeout = 1 * time.Second
		return redis.NewClient(opt)
	}

	// Path B: split fields
	addr := os.Getenv("REDIS_ADDR") // host:port (no scheme)
	if addr == "" {
		log.Fatal("missing Redis config: set UPSTASH_REDIS_URL or REDIS_ADDR/REDIS_USER/REDIS_PASSWORD")
	}
	opt := &redis.Options{
		Addr:         addr,
		Username:     os.Getenv("REDIS_USER"),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
	if os.Getenv("REDIS_TLS") != "false" {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opt)
}

// openCatalog selects the document store behind the catalog and
// entitlement stores.
func openCatalog(ctx context.Context, db *sql.DB) (docstore.Store, func()) {
	switch validate.CatalogBackend() {
	case "firestore":
		client, err := firestore.NewClient(ctx, os.Getenv("GOOGLE_CLOUD_PROJECT"))
		if err != nil {
			log.Fatalf("firestore client: %v", err)
		}
		fs, err := docstore.NewFirestore(ctx, client)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println("✅ Connected to Firestore")
		return fs, func() { _ = fs.Close() }
	case "memory":
		log.Println("[Catalog] using in-memory store; data is lost on restart")
		return docstore.NewMemory(), func() {}
	default:
		return docstore.NewPostgres(db), func() {}
	}
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := append([]string{}, auth.Schema...)
	stmts = append(stmts, viewqueue.Schema...)
	if validate.CatalogBackend() == "postgres" {
		stmts = append(stmts, docstore.Schema...)
	}
	return dbx.WithinTx(ctx, db, func(tx *sql.Tx) error {
		return dbx.Migrate(ctx, tx, stmts...)
	})
}

// openBlobs returns the binary store for non-text uploads. Both results are
// nil interfaces when none is configured; only text content is accepted then.
func openBlobs(ctx context.Context) (ingest.BlobStore, books.URLResolver) {
	switch validate.BlobBackend() {
	case "gcs":
		b, err := gcs.NewFromEnv(ctx)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println("✅ Connected to Google Cloud Storage")
		return b, b
	default:
		c, err := s3store.NewR2Client(ctx)
		if err != nil {
			log.Printf("[Storage] R2 unavailable, binary uploads disabled: %v", err)
			return nil, nil
		}
		fmt.Println("✅ Connected to R2")
		return c, c
	}
}

func logLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(envOr("LOG_LEVEL", "info"))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
