package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/validate"
)

const cacheVersionKey = "cat:ver" // global version counter in Redis

// Cached serves List from Redis. Keys carry a version prefix that every
// successful Create, Patch and Delete bumps, so a write invalidates all listings at
// once. Listed books never carry content bodies or inline cover payloads,
// cached or not; Get always reads the store.
type Cached struct {
	*Store
	rdb     redis.Cmdable
	ttl     time.Duration
	shortTO time.Duration // per cache op
	warned  atomic.Bool
}

// NewCached wraps s. rdb may be nil, in which case List goes straight to
// the store.
func NewCached(s *Store, rdb redis.Cmdable) *Cached {
	return &Cached{
		Store:   s,
		rdb:     rdb,
		ttl:     validate.EnvDuration("CATALOG_CACHE_TTL", "5m"),
		shortTO: validate.EnvDuration("CATALOG_CACHE_TIMEOUT", "150ms"),
	}
}

func (c *Cached) Create(ctx context.Context, nb NewBook) (string, error) {
	id, err := c.Store.Create(ctx, nb)
	if err == nil {
		c.bump(ctx)
	}
	return id, err
}

func (c *Cached) Patch(ctx context.Context, id string, p AssetPatch) error {
	err := c.Store.Patch(ctx, id, p)
	if err == nil {
		c.bump(ctx)
	}
	return err
}

func (c *Cached) Delete(ctx context.Context, id string) error {
	err := c.Store.Delete(ctx, id)
	if err == nil {
		c.bump(ctx)
	}
	return err
}

func (c *Cached) List(ctx context.Context, genre string) ([]models.Book, error) {
	key, ok := c.listKey(ctx, genre)
	if ok {
		if books, hit := c.get(ctx, key); hit {
			return books, nil
		}
	}

	books, err := c.Store.List(ctx, genre)
	if err != nil {
		return nil, err
	}
	books = listed(books)
	if ok {
		c.set(ctx, key, books)
	}
	return books, nil
}

// listKey resolves "cat:v{n}:list:{genre}". On a Redis failure the cache is
// bypassed for this call.
func (c *Cached) listKey(ctx context.Context, genre string) (string, bool) {
	if c.rdb == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	ver, err := c.rdb.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		ver = 1
	} else if err != nil {
		c.warnOnce("version read failed: %v; bypassing cache", err)
		return "", false
	}
	g := strings.ToLower(strings.TrimSpace(genre))
	if g == "" {
		g = "_all"
	}
	return fmt.Sprintf("cat:v%d:list:%s", ver, g), true
}

func (c *Cached) get(ctx context.Context, key string) ([]models.Book, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warnOnce("get failed: %v", err)
		}
		return nil, false
	}
	var books []models.Book
	if err := json.Unmarshal(raw, &books); err != nil {
		return nil, false
	}
	return books, true
}

func (c *Cached) set(ctx context.Context, key string, books []models.Book) {
	raw, err := json.Marshal(books)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.shortTO)
	defer cancel()
	if err := c.rdb.SetEx(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warnOnce("set failed: %v", err)
		return
	}
	c.warned.Store(false)
}

// bump increments the version key. Old keys expire on their own.
func (c *Cached) bump(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.shortTO)
	defer cancel()
	if err := c.rdb.Incr(ctx, cacheVersionKey).Err(); err != nil {
		log.Printf("[catalog][cache] bump version failed: %v", err)
	}
}

// warnOnce logs until the next successful write, then stays quiet.
func (c *Cached) warnOnce(format string, args ...any) {
	if c.warned.Swap(true) {
		return
	}
	log.Printf("[catalog][cache] "+format, args...)
}

// listed drops content bodies and inline cover data but keeps which of them
// are present.
func listed(books []models.Book) []models.Book {
	out := make([]models.Book, len(books))
	for i, b := range books {
		if b.TextContent != nil {
			b.TextContent = new(string)
		}
		if b.PDFURL != nil {
			b.PDFURL = new(string)
		}
		if b.Cover != nil {
			b.Cover = &models.Cover{ContentType: b.Cover.ContentType, URL: b.Cover.URL}
		}
		out[i] = b
	}
	return out
}
