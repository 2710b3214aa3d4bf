package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrNoRole is returned by a RoleSource when the account has no valid role.
var ErrNoRole = errors.New("session: account has no role")

// RoleSource is the system of record for account roles.
type RoleSource interface {
	RoleOf(ctx context.Context, userID string) (models.Role, error)
}

type RoleCache interface {
	Get(ctx context.Context, userID string) (models.Role, bool, error)
	Set(ctx context.Context, userID string, role models.Role, ttl time.Duration) error
	Del(ctx context.Context, userID string) error
}

// RedisRoleCache stores roles under "role:<userID>".
type RedisRoleCache struct {
	rdb redis.Cmdable
}

func NewRedisRoleCache(rdb redis.Cmdable) *RedisRoleCache { return &RedisRoleCache{rdb: rdb} }

func roleKey(userID string) string { return "role:" + userID }

func (c *RedisRoleCache) Get(ctx context.Context, userID string) (models.Role, bool, error) {
	v, err := c.rdb.Get(ctx, roleKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	r, ok := models.ParseRole(v)
	return r, ok, nil
}

func (c *RedisRoleCache) Set(ctx context.Context, userID string, role models.Role, ttl time.Duration) error {
	return c.rdb.Set(ctx, roleKey(userID), string(role), ttl).Err()
}

func (c *RedisRoleCache) Del(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, roleKey(userID)).Err()
}

// RoleResolver turns an Identity into a Session with its role attached.
type RoleResolver struct {
	src   RoleSource
	cache RoleCache
	ttl   time.Duration
	log   *slog.Logger
}

// NewRoleResolver builds a resolver. cache may be nil.
func NewRoleResolver(src RoleSource, cache RoleCache, ttl time.Duration) *RoleResolver {
	return &RoleResolver{src: src, cache: cache, ttl: ttl, log: slog.Default()}
}

// Resolve never fails: a lookup error leaves the role unknown so that
// role-gated actions wait instead of being denied.
func (r *RoleResolver) Resolve(ctx context.Context, id Identity) Session {
	if id.UserID == "" {
		return Anonymous()
	}
	s := Authenticated(id)

	if r.cache != nil {
		role, ok, err := r.cache.Get(ctx, id.UserID)
		if err != nil {
			r.log.WarnContext(ctx, "role cache read failed", "user_id", id.UserID, "error", err)
		} else if ok {
			return s.WithRole(role)
		}
	}

	role, err := r.src.RoleOf(ctx, id.UserID)
	switch {
	case errors.Is(err, ErrNoRole):
		s.RoleState = RoleMissing
		return s
	case err != nil:
		r.log.WarnContext(ctx, "role lookup failed", "user_id", id.UserID, "error", err)
		return s
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, id.UserID, role, r.ttl); err != nil {
			r.log.WarnContext(ctx, "role cache write failed", "user_id", id.UserID, "error", err)
		}
	}
	return s.WithRole(role)
}

// Forget evicts a cached role.
func (r *RoleResolver) Forget(ctx context.Context, userID string) {
	if r.cache == nil || userID == "" {
		return
	}
	if err := r.cache.Del(ctx, userID); err != nil {
		r.log.WarnContext(ctx, "role cache evict failed", "user_id", userID, "error", err)
	}
}

// Watch evicts cached roles whenever the broker reports a session change.
func (r *RoleResolver) Watch(b *Broker) (unsubscribe func()) {
	return b.Subscribe(func(c Change) {
		r.Forget(context.Background(), c.Identity.UserID)
	})
}
