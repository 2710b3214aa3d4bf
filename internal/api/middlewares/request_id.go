package middlewares

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

var ridRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if !ridRe.MatchString(rid) {
			rid = genRID()
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, rid))
		r.Header.Set("X-Request-ID", rid)
		w.Header().Set("X-Request-ID", rid)

		next.ServeHTTP(w, r)
	})
}

// GetRequestID extracts the value previously set by RequestID middleware.
func GetRequestID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyRequestID).(string)
	if v != "" {
		return v
	}
	return r.Header.Get("X-Request-ID")
}

// AccessLog writes one structured line per request. It must run inside
// RequestID.
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrapRT(w)
			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			if rw.status >= 500 {
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "request",
				slog.String("request_id", GetRequestID(r)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int64("bytes", rw.bytes),
				slog.Duration("duration", time.Since(rw.start)),
			)
		})
	}
}

func genRID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	// timestamp prefix helps with log sorting
	ts := time.Now().UTC().Format("20060102T150405Z")
	return ts + "-" + hex.EncodeToString(b[:])
}
