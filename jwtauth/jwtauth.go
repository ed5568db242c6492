// Package jwtauth is a principal source backed by JWT access tokens. It
// mints tokens for authenticated users and provides gin middleware that
// resolves the bearer token into the current principal for downstream
// guards. Requests without a usable token proceed as anonymous; rejecting
// them is the guard's decision, not this package's.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/config"
	"github.com/roadandrail/keg-auth/entity"
	"github.com/roadandrail/keg-auth/guard"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrExpiredToken = errors.New("expired access token")
)

// UserStore loads the user behind a token subject, with relations populated
// so permission checks can run against the effective set. Each request
// re-reads the user, so permission revocations take effect immediately.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
}

// Manager mints and parses access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager builds a Manager from the JWT configuration.
func NewManager(cfg config.JWTConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.Secret),
		ttl:    cfg.AccessTokenTTL,
		issuer: cfg.Issuer,
	}
}

// Mint issues a signed access token whose subject is the user's ID.
func (m *Manager) Mint(u *entity.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   u.ID.String(),
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Parse validates the token signature and expiry and returns the subject
// user ID.
func (m *Manager) Parse(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrExpiredToken
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// Middleware resolves the Authorization bearer token into the current
// principal. Missing or invalid tokens, unknown users, and inactive users
// all leave the request anonymous.
func (m *Manager) Middleware(store UserStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guard.SetPrincipal(c, entity.Anonymous)

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.Next()
			return
		}

		id, err := m.Parse(strings.TrimPrefix(header, prefix))
		if err != nil {
			logger.Debug("access token rejected", zap.Error(err))
			c.Next()
			return
		}

		user, err := store.FindByID(c.Request.Context(), id)
		if err != nil {
			logger.Debug("token subject not resolvable", zap.Error(err))
			c.Next()
			return
		}
		if !user.IsActive() {
			logger.Debug("token subject inactive", zap.String("user_id", id.String()))
			c.Next()
			return
		}

		guard.SetPrincipal(c, user)
		c.Next()
	}
}
