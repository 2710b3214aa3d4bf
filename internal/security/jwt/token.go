package jwtutil

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/5w1tchy/folio-api/internal/validate"
)

const defaultIssuer = "folio-api"

// Config signs and checks storefront access tokens.
type Config struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	ClockSkew time.Duration
}

// LoadConfig reads AUTH_*; validate.Env rejects short secrets at startup.
func LoadConfig() Config {
	return Config{
		Secret:    []byte(validate.EnvString("AUTH_JWT_SECRET", "")),
		Issuer:    validate.EnvString("AUTH_JWT_ISSUER", defaultIssuer),
		AccessTTL: validate.EnvDuration("AUTH_ACCESS_TTL", "15m"),
		ClockSkew: time.Duration(validate.EnvInt("AUTH_CLOCK_SKEW_SEC", 60)) * time.Second,
	}
}

func (c Config) issuer() string {
	if c.Issuer == "" {
		return defaultIssuer
	}
	return c.Issuer
}

// AccessClaims identify an account. The role is not carried; it is
// resolved per request so publisher approval applies without a new token.
type AccessClaims struct {
	TokenVersion int    `json:"tv"`
	Email        string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var (
	cfgMu  sync.RWMutex
	cfg    Config
	cfgSet bool
)

// Configure replaces the env-derived config; main calls it after loading
// .env, tests call it with a fixed secret.
func Configure(c Config) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	cfg, cfgSet = c, true
}

func current() Config {
	cfgMu.RLock()
	c, ok := cfg, cfgSet
	cfgMu.RUnlock()
	if ok {
		return c
	}
	c = LoadConfig()
	Configure(c)
	return c
}

// DefaultAccessTTL is the configured access token lifetime.
func DefaultAccessTTL() time.Duration {
	if d := current().AccessTTL; d > 0 {
		return d
	}
	return 15 * time.Minute
}

// SignAccess returns (tokenString, jti).
func SignAccess(userID, email string, tokenVersion int, ttl time.Duration) (string, string, error) {
	c := current()
	jti, err := newJTI()
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	claims := AccessClaims{
		TokenVersion: tokenVersion,
		Email:        email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer(),
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	return s, jti, err
}

var errNoSubject = errors.New("token has no subject")

// ParseAccess checks the HS256 signature, expiry (with skew) and issuer.
func ParseAccess(tokenStr string) (*AccessClaims, error) {
	c := current()
	parser := jwt.NewParser(
		jwt.WithLeeway(c.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer()),
		jwt.WithExpirationRequired(),
	)
	claims := &AccessClaims{}
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return c.Secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}
	return claims, nil
}

func newJTI() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
