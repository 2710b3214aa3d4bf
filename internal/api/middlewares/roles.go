package middlewares

import (
	"net/http"
	"strconv"

	"github.com/5w1tchy/folio-api/internal/access"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/session"
)

// pendingRetryAfter is sent while a role lookup is still unresolved.
const pendingRetryAfter = 2

// RequireAccess lets the request through only when the gate grants the
// session one of roles (any signed-in user when roles is empty).
func RequireAccess(g *access.Gate, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.CanAccess(session.FromContext(r.Context()), roles...)
			if d.Allowed() {
				next.ServeHTTP(w, r)
				return
			}
			WriteDecision(w, r, d)
		})
	}
}

// WriteDecision renders a non-granting decision.
func WriteDecision(w http.ResponseWriter, r *http.Request, d access.Decision) {
	switch d.Outcome {
	case access.Pending:
		w.Header().Set("Retry-After", strconv.Itoa(pendingRetryAfter))
		apperr.Write(w, r, apperr.Problem{
			Status:    http.StatusServiceUnavailable,
			Title:     "Access pending",
			Detail:    "authorization could not be decided yet, retry shortly",
			Retryable: true,
		})
	case access.NeedsPurchase:
		apperr.Redirect(w, r, d.Redirect(), http.StatusPaymentRequired)
	default:
		apperr.WriteError(w, r, d.Err("access"))
	}
}
