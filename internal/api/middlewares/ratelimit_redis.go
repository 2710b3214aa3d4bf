package middlewares

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/5w1tchy/folio-api/internal/validate"
)

// takeToken refills KEYS[1] (hash t=tokens, at=ms) at ARGV[1] tokens per
// second up to ARGV[2], then spends one if it can.
// Returns {allowed, whole tokens left, retry ms}.
var takeToken = redis.NewScript(`
local rate, cap = tonumber(ARGV[1]), tonumber(ARGV[2])
local clock = redis.call('TIME')
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)
local st = redis.call('HMGET', KEYS[1], 't', 'at')
local tokens = tonumber(st[1]) or cap
local at = tonumber(st[2]) or now
tokens = math.min(cap, tokens + math.max(0, now - at) * rate / 1000)
local ok, wait = 0, 0
if tokens >= 1 then
  tokens, ok = tokens - 1, 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end
redis.call('HSET', KEYS[1], 't', tokens, 'at', now)
redis.call('PEXPIRE', KEYS[1], math.ceil(cap * 1000 / rate))
return {ok, math.floor(tokens), wait}
`)

// TokenBucket smooths bursts: burst requests at once, then rate per second.
type TokenBucket struct {
	rdb   redis.Cmdable
	rate  float64
	burst int
}

func NewTokenBucket(rdb redis.Cmdable, ratePerSecond float64, burst int) *TokenBucket {
	return &TokenBucket{rdb: rdb, rate: ratePerSecond, burst: burst}
}

func (*TokenBucket) Policy() string { return "token-bucket" }

func (b *TokenBucket) Take(ctx context.Context, key string) (Verdict, error) {
	res, err := takeToken.Run(ctx, b.rdb, []string{key}, b.rate, b.burst).Int64Slice()
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Allowed:    res[0] == 1,
		Limit:      b.burst,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// SlidingWindow allows limit requests in any window-long span.
type SlidingWindow struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
}

func NewSlidingWindow(rdb redis.Cmdable, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, limit: limit, window: window}
}

func (*SlidingWindow) Policy() string { return "sliding-window" }

func (s *SlidingWindow) Take(ctx context.Context, key string) (Verdict, error) {
	now := time.Now()
	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-s.window).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, s.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Verdict{}, err
	}

	n := int(card.Val())
	v := Verdict{Allowed: n <= s.limit, Limit: s.limit, Remaining: max(0, s.limit-n)}
	if !v.Allowed {
		v.RetryAfter = s.window
		if z := oldest.Val(); len(z) == 1 {
			v.RetryAfter = time.UnixMilli(int64(z[0].Score)).Add(s.window).Sub(now)
		}
	}
	return v, nil
}

// FixedWindow counts requests per key and resets window after the first.
type FixedWindow struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
}

func NewFixedWindow(rdb redis.Cmdable, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{rdb: rdb, limit: limit, window: window}
}

func (*FixedWindow) Policy() string { return "fixed-window" }

func (f *FixedWindow) Take(ctx context.Context, key string) (Verdict, error) {
	n, err := f.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Verdict{}, err
	}
	if n == 1 {
		_ = f.rdb.PExpire(ctx, key, f.window).Err()
	}
	v := Verdict{Allowed: n <= int64(f.limit), Limit: f.limit, Remaining: max(0, f.limit-int(n))}
	if !v.Allowed {
		v.RetryAfter = f.window
		if ttl, err := f.rdb.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
			v.RetryAfter = ttl
		}
	}
	return v, nil
}

// LoginRateLimit caps credential attempts per client IP at
// LOGIN_MAX_ATTEMPTS per LOGIN_WINDOW. Without Redis it is a no-op.
func LoginRateLimit(rdb redis.Cmdable, next http.Handler) http.Handler {
	if rdb == nil {
		return next
	}
	l := NewFixedWindow(rdb, validate.EnvInt("LOGIN_MAX_ATTEMPTS", 10), validate.EnvDuration("LOGIN_WINDOW", "5m"))
	return RateLimit(l, PerIPKey("rl:login"))(next)
}
