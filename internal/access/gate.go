// Package access is the single place that decides whether a session may
// perform an action. Decisions are values; callers translate them into
// redirects or responses.
package access

import (
	"context"
	"log/slog"
	"slices"

	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
	"github.com/5w1tchy/folio-api/internal/session"
)

type Outcome int

const (
	Grant Outcome = iota
	Deny
	// Pending means the decision needs information that is not available yet
	// (role still unknown, entitlement lookup failed). Retry later.
	Pending
	// NeedsPurchase means the caller is allowed in general but does not own
	// the book.
	NeedsPurchase
)

func (o Outcome) String() string {
	switch o {
	case Grant:
		return "grant"
	case Deny:
		return "deny"
	case Pending:
		return "pending"
	case NeedsPurchase:
		return "needs_purchase"
	default:
		return "unknown"
	}
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonWrongRole
)

type Decision struct {
	Outcome Outcome
	Reason  Reason
	BookID  string
}

func (d Decision) Allowed() bool { return d.Outcome == Grant }

// Redirect is where a browser should be sent for a non-granting decision.
func (d Decision) Redirect() string {
	switch {
	case d.Outcome == Deny && d.Reason == ReasonUnauthenticated:
		return apperr.LoginPath
	case d.Outcome == Deny:
		return apperr.NotAuthorizedPath
	case d.Outcome == NeedsPurchase:
		return PurchasePath(d.BookID)
	default:
		return ""
	}
}

// Err converts a denial into the matching tagged error. Grants, pending and
// purchase decisions return nil.
func (d Decision) Err(op string) error {
	if d.Outcome != Deny {
		return nil
	}
	if d.Reason == ReasonUnauthenticated {
		return apperr.Unauthenticated(op)
	}
	return apperr.WrongRole(op)
}

func PurchasePath(bookID string) string { return "/books/" + bookID + "/purchase" }

// Ownership answers whether a user holds an entitlement for a book.
type Ownership interface {
	Owns(ctx context.Context, userID, bookID string) (bool, error)
}

type Gate struct {
	owns Ownership
	log  *slog.Logger
}

func New(o Ownership) *Gate {
	return &Gate{owns: o, log: slog.Default()}
}

// CanAccess checks authentication and, when roles are given, that the
// session's role is one of them. With no roles any signed-in user passes.
func (g *Gate) CanAccess(s session.Session, roles ...models.Role) Decision {
	if !s.IsAuthenticated() {
		return Decision{Outcome: Deny, Reason: ReasonUnauthenticated}
	}
	if len(roles) == 0 {
		return Decision{Outcome: Grant}
	}
	switch s.RoleState {
	case session.RoleUnknown:
		return Decision{Outcome: Pending}
	case session.RoleMissing:
		return Decision{Outcome: Deny, Reason: ReasonWrongRole}
	}
	if !slices.Contains(roles, s.Role) {
		return Decision{Outcome: Deny, Reason: ReasonWrongRole}
	}
	return Decision{Outcome: Grant}
}

// CanRead gates book content: a reader or publisher who owns the book.
func (g *Gate) CanRead(ctx context.Context, s session.Session, bookID string) Decision {
	d := g.CanAccess(s, models.RoleReader, models.RolePublisher)
	if !d.Allowed() {
		d.BookID = bookID
		return d
	}
	owned, err := g.owns.Owns(ctx, s.UserID(), bookID)
	if err != nil {
		g.log.WarnContext(ctx, "ownership check failed", "user_id", s.UserID(), "book_id", bookID, "error", err)
		return Decision{Outcome: Pending, BookID: bookID}
	}
	if !owned {
		return Decision{Outcome: NeedsPurchase, BookID: bookID}
	}
	return Decision{Outcome: Grant, BookID: bookID}
}
