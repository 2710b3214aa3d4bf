package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/5w1tchy/folio-api/internal/api/httpx"
	"github.com/5w1tchy/folio-api/internal/apperr"
	"github.com/5w1tchy/folio-api/internal/models"
	jwtutil "github.com/5w1tchy/folio-api/internal/security/jwt"
	"github.com/5w1tchy/folio-api/internal/security/password"
	"github.com/5w1tchy/folio-api/internal/session"
)

type Handler struct {
	Store  UserStore
	Tokens RefreshStore
	Broker *session.Broker // optional
}

func New(store UserStore, tokens RefreshStore, broker *session.Broker) *Handler {
	return &Handler{Store: store, Tokens: tokens, Broker: broker}
}

func (h *Handler) publish(kind session.ChangeKind, u User) {
	if h.Broker == nil {
		return
	}
	h.Broker.Publish(session.Change{Kind: kind, Identity: session.Identity{UserID: u.ID, Email: u.Email}})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrorCode(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !strings.Contains(req.Email, "@") {
		apperr.WriteError(w, r, apperr.Validation("auth.register", "email", "a valid email is required"))
		return
	}

	role := models.RoleReader
	if req.Role != "" {
		var ok bool
		if role, ok = models.ParseRole(strings.TrimSpace(req.Role)); !ok {
			apperr.WriteError(w, r, apperr.Validation("auth.register", "role", "role must be reader or publisher"))
			return
		}
	}

	pw, warn, err := password.Validate(req.Password, req.Email, req.Username)
	if err != nil {
		apperr.WriteError(w, r, apperr.Validation("auth.register", "password", err.Error()))
		return
	}

	hash, err := password.Hash(pw)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "hash_error", "Failed to hash password")
		return
	}

	u, err := h.Store.CreateUser(r.Context(), req.Email, strings.TrimSpace(req.Username), hash, role)
	if err != nil {
		apperr.HandleDBError(w, r, err, "Cannot create user")
		return
	}

	pair, err := h.issue(r.Context(), u)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "token_error", "Failed to issue tokens")
		return
	}
	slog.InfoContext(r.Context(), "account registered", "user_id", u.ID, "role", string(u.Role))
	h.publish(session.Registered, u)
	h.publish(session.SignedIn, u)

	resp := map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"role":          u.Role,
	}
	if warn != nil {
		resp["password_warning"] = warn
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrorCode(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}
	ctx := r.Context()
	u, err := h.Store.FindUserByEmail(ctx, strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil || u.ID == "" {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			slog.WarnContext(ctx, "login lookup failed", "error", err)
		}
		httpx.ErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	ok, upgrade, err := password.Verify(req.Password, u.PasswordHash)
	if err != nil || !ok {
		httpx.ErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	if upgrade {
		if phc, err := password.Hash(req.Password); err == nil {
			_ = h.Store.UpdateUserPasswordHash(ctx, u.ID, phc)
		}
	}

	pair, err := h.issue(ctx, u)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "token_error", "Failed to issue tokens")
		return
	}
	h.publish(session.SignedIn, u)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.ErrorCode(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}
	ctx := r.Context()

	userID, tv, err := h.Tokens.Consume(ctx, req.RefreshToken)
	if err != nil {
		httpx.ErrorCode(w, http.StatusUnauthorized, "invalid_refresh", "Invalid refresh token")
		return
	}
	u, err := h.Store.FindUserByID(ctx, userID)
	if err != nil || u.TokenVersion != tv {
		httpx.ErrorCode(w, http.StatusUnauthorized, "token_revoked", "Token has been revoked")
		return
	}

	pair, err := h.issue(ctx, u)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "token_error", "Failed to issue tokens")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RefreshToken != "" {
		if userID, _, err := h.Tokens.Consume(r.Context(), req.RefreshToken); err == nil {
			h.publish(session.SignedOut, User{ID: userID})
		}
	}
	httpx.OKNoData(w)
}

// Me reports the caller's account, including the role resolved for this
// request.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if !s.IsAuthenticated() {
		apperr.WriteError(w, r, apperr.Unauthenticated("auth.me"))
		return
	}
	u, err := h.Store.FindUserByID(r.Context(), s.UserID())
	if err != nil {
		httpx.ErrorCode(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, MeResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      s.Role,
		RoleState: s.RoleState.String(),
		CreatedAt: u.CreatedAt,
	})
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if !s.IsAuthenticated() {
		apperr.WriteError(w, r, apperr.Unauthenticated("auth.logout_all"))
		return
	}
	if _, err := h.Store.BumpTokenVersion(r.Context(), s.UserID()); err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "update_failed", "Failed to update token version")
		return
	}
	h.publish(session.SignedOut, User{ID: s.UserID()})
	httpx.OKNoData(w)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if !s.IsAuthenticated() {
		apperr.WriteError(w, r, apperr.Unauthenticated("auth.change_password"))
		return
	}
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OldPassword == "" {
		httpx.ErrorCode(w, http.StatusBadRequest, "invalid_input", "Invalid input")
		return
	}
	ctx := r.Context()

	u, err := h.Store.FindUserByID(ctx, s.UserID())
	if err != nil {
		httpx.ErrorCode(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	okPass, _, err := password.Verify(req.OldPassword, u.PasswordHash)
	if err != nil || !okPass {
		httpx.ErrorCode(w, http.StatusForbidden, "forbidden", "Invalid old password")
		return
	}

	np, warn, err := password.Validate(req.NewPassword, u.Email, u.Username)
	if err != nil {
		apperr.WriteError(w, r, apperr.Validation("auth.change_password", "new_password", err.Error()))
		return
	}
	if warn != nil {
		w.Header().Set("X-Password-Score", strconv.Itoa(warn.Score))
	}

	phc, err := password.Hash(np)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "hash_error", "Failed to hash new password")
		return
	}
	if err := h.Store.UpdateUserPasswordHash(ctx, u.ID, phc); err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "update_failed", "Failed to update password")
		return
	}
	tv, err := h.Store.BumpTokenVersion(ctx, u.ID)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "update_failed", "Failed to update password")
		return
	}
	u.TokenVersion = tv

	pair, err := h.issue(ctx, u)
	if err != nil {
		httpx.ErrorCode(w, http.StatusInternalServerError, "token_error", "Failed to issue tokens")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) issue(ctx context.Context, u User) (TokenPair, error) {
	access, _, err := jwtutil.SignAccess(u.ID, u.Email, u.TokenVersion, jwtutil.DefaultAccessTTL())
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := h.Tokens.Issue(ctx, u.ID, u.TokenVersion)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
