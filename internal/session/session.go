// Package session models who is making a request. A Session is built once per
// request and passed explicitly to the access gate and the ingestion pipeline;
// nothing here is global.
package session

import (
	"context"

	"github.com/5w1tchy/folio-api/internal/models"
)

// Identity is what the identity provider vouches for.
type Identity struct {
	UserID string
	Email  string
}

// RoleState tracks whether the role lookup for an identity has finished.
type RoleState int

const (
	// RoleUnknown: the lookup has not completed or failed transiently.
	RoleUnknown RoleState = iota
	// RoleKnown: Role holds the account's role.
	RoleKnown
	// RoleMissing: the account exists but has no usable role.
	RoleMissing
)

func (s RoleState) String() string {
	switch s {
	case RoleKnown:
		return "known"
	case RoleMissing:
		return "missing"
	default:
		return "unknown"
	}
}

type Session struct {
	Identity  *Identity
	Role      models.Role
	RoleState RoleState
}

// Anonymous is the session of an unauthenticated caller.
func Anonymous() Session { return Session{} }

// Authenticated returns a session for id whose role has not been resolved.
func Authenticated(id Identity) Session {
	return Session{Identity: &id, RoleState: RoleUnknown}
}

// WithRole returns a copy of s with a resolved role.
func (s Session) WithRole(r models.Role) Session {
	s.Role = r
	s.RoleState = RoleKnown
	return s
}

func (s Session) IsAuthenticated() bool {
	return s.Identity != nil && s.Identity.UserID != ""
}

// UserID is "" for anonymous sessions.
func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.UserID
}

type ctxKey struct{}

func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session, or Anonymous when none was set.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(ctxKey{}).(Session); ok {
		return s
	}
	return Anonymous()
}
