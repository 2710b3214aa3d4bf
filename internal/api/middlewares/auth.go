package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	jwtutil "github.com/5w1tchy/folio-api/internal/security/jwt"
	"github.com/5w1tchy/folio-api/internal/session"
)

// TokenVersions reports an account's current token_version.
type TokenVersions interface {
	TokenVersion(ctx context.Context, userID string) (int, error)
}

// Authenticate attaches a session to every request. A missing, invalid or
// revoked bearer token leaves the caller anonymous; access decisions are
// made downstream by RequireAccess or the handlers.
func Authenticate(tv TokenVersions, roles *session.RoleResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.Anonymous()
			if id, ok := identify(r, tv); ok {
				s = roles.Resolve(r.Context(), id)
			}
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
		})
	}
}

func identify(r *http.Request, tv TokenVersions) (session.Identity, bool) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		return session.Identity{}, false
	}
	tokenStr, err := bearer(raw)
	if err != nil {
		return session.Identity{}, false
	}
	claims, err := jwtutil.ParseAccess(tokenStr)
	if err != nil {
		return session.Identity{}, false
	}
	cur, err := tv.TokenVersion(r.Context(), claims.Subject)
	if err != nil {
		slog.DebugContext(r.Context(), "token version lookup failed", "user_id", claims.Subject, "error", err)
		return session.Identity{}, false
	}
	if claims.TokenVersion != cur {
		return session.Identity{}, false
	}
	return session.Identity{UserID: claims.Subject, Email: claims.Email}, true
}

func bearer(h string) (string, error) {
	if !strings.HasPrefix(h, "Bearer ") && !strings.HasPrefix(h, "bearer ") {
		return "", errors.New("no bearer")
	}
	return strings.TrimSpace(h[len("Bearer "):]), nil
}
