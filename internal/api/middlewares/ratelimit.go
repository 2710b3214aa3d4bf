package middlewares

import (
	"context"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/session"
)

// KeyFunc names the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// PerIPKey buckets by client address.
func PerIPKey(prefix string) KeyFunc {
	return func(r *http.Request) string {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		return prefix + ":ip:" + ip
	}
}

// PerUserKey buckets signed-in readers and publishers by account and
// everyone else by IP. Needs Authenticate to have run.
func PerUserKey(prefix string) KeyFunc {
	byIP := PerIPKey(prefix)
	return func(r *http.Request) string {
		if uid := session.FromContext(r.Context()).UserID(); uid != "" {
			return prefix + ":user:" + uid
		}
		return byIP(r)
	}
}

func clientIP(r *http.Request) string {
	// leftmost X-Forwarded-For entry is the original client
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Verdict is a limiter's answer for one request.
type Verdict struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter charges one request against key.
type Limiter interface {
	Policy() string
	Take(ctx context.Context, key string) (Verdict, error)
}

// RateLimit answers 429 with Retry-After when l refuses a request. A
// limiter error lets the request through.
func RateLimit(l Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			v, err := l.Take(r.Context(), k)
			if err != nil {
				log.Printf("[RateLimit] %s: %v (allowing request)", l.Policy(), err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Policy", l.Policy())
			h.Set("X-RateLimit-Limit", strconv.Itoa(v.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))
			if v.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			secs := max(1, int(math.Ceil(v.RetryAfter.Seconds())))
			h.Set("Retry-After", strconv.Itoa(secs))
			log.Printf("[RateLimit] %s blocked key=%s retry=%ds", l.Policy(), k, secs)
			apperr.WriteStatus(w, r, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		})
	}
}
