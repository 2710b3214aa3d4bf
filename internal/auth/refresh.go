package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidRefresh = errors.New("auth: invalid refresh token")

// RedisRefreshStore keeps refresh tokens under "rt:<token>" with value
// "userID|tokenVersion".
type RedisRefreshStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisRefreshStore(rdb redis.Cmdable) *RedisRefreshStore {
	return &RedisRefreshStore{rdb: rdb, ttl: refreshTTL()}
}

func (s *RedisRefreshStore) Issue(ctx context.Context, userID string, tokenVersion int) (string, error) {
	token, err := randToken()
	if err != nil {
		return "", err
	}
	val := userID + "|" + strconv.Itoa(tokenVersion)
	if err := s.rdb.Set(ctx, "rt:"+token, val, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisRefreshStore) Consume(ctx context.Context, token string) (string, int, error) {
	val, err := s.rdb.GetDel(ctx, "rt:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, ErrInvalidRefresh
	}
	if err != nil {
		return "", 0, err
	}
	userID, rawTV, ok := strings.Cut(val, "|")
	if !ok || userID == "" {
		return "", 0, ErrInvalidRefresh
	}
	tv, err := strconv.Atoi(rawTV)
	if err != nil {
		return "", 0, ErrInvalidRefresh
	}
	return userID, tv, nil
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, "rt:"+token).Err()
}

// refreshTTL reads AUTH_REFRESH_TTL, default 30 days.
func refreshTTL() time.Duration {
	if s := os.Getenv("AUTH_REFRESH_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return 30 * 24 * time.Hour
}

func randToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
