package auth

import (
	"context"
	"time"

	"github.com/5w1tchy/folio-api/internal/models"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type MeResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	RoleState string      `json:"role_state"`
	CreatedAt time.Time   `json:"created_at"`
}

type User struct {
	ID           string // uuid
	Email        string
	Username     string
	PasswordHash string
	TokenVersion int
	Role         models.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore keeps accounts. The role is written once by CreateUser.
type UserStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string, role models.Role) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	UpdateUserPasswordHash(ctx context.Context, userID, newHash string) error
	TokenVersion(ctx context.Context, userID string) (int, error)
	// BumpTokenVersion invalidates every access token issued so far.
	BumpTokenVersion(ctx context.Context, userID string) (int, error)
}

// RefreshStore is the server-side allowlist of refresh tokens.
type RefreshStore interface {
	Issue(ctx context.Context, userID string, tokenVersion int) (string, error)
	// Consume returns the token's owner and deletes it (rotation).
	Consume(ctx context.Context, token string) (userID string, tokenVersion int, err error)
	Revoke(ctx context.Context, token string) error
}
