package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/models"
)

const (
	issuer   = "lifeline"
	audience = "lifeline-clients"
)

// Identity is what a verified token resolves to.
type Identity struct {
	AccountID string
	Role      models.Role
}

// TokenIssuer signs and verifies HS256 bearer tokens. The signing method is
// pinned; tokens presenting any other method are rejected.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: empty token secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

func (t *TokenIssuer) Issue(accountID string, role models.Role) (string, error) {
	if accountID == "" || role == "" {
		return "", apperr.Validation("account id and role are required to issue a token", nil)
	}
	now := time.Now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Verify parses and validates a raw token string, distinguishing expiry from
// every other failure so the HTTP layer can answer token_expired precisely.
func (t *TokenIssuer) Verify(raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, apperr.Unauthenticated("missing bearer token")
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperr.TokenExpired("token expired")
		}
		return Identity{}, apperr.Unauthenticated("invalid token")
	}
	if c.Subject == "" || !c.Role.Valid() {
		return Identity{}, apperr.Unauthenticated("token missing identity claims")
	}
	return Identity{AccountID: c.Subject, Role: c.Role}, nil
}
