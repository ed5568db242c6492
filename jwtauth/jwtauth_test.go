package jwtauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/config"
	"github.com/roadandrail/keg-auth/entity"
	domainErrors "github.com/roadandrail/keg-auth/errors"
	"github.com/roadandrail/keg-auth/guard"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testManager(ttl time.Duration) *Manager {
	return NewManager(config.JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: ttl,
		Issuer:         "keg-auth-test",
	})
}

// fakeStore serves users from a map.
type fakeStore map[uuid.UUID]*entity.User

func (s fakeStore) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	return u, nil
}

func TestMintAndParse(t *testing.T) {
	m := testManager(time.Hour)
	u := &entity.User{ID: uuid.New()}

	token, err := m.Mint(u)
	require.NoError(t, err)

	id, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
}

func TestParseExpired(t *testing.T) {
	m := testManager(-time.Minute)
	token, err := m.Mint(&entity.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejectsBadTokens(t *testing.T) {
	m := testManager(time.Hour)
	token, err := m.Mint(&entity.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = m.Parse("not a token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewManager(config.JWTConfig{Secret: "other-secret", AccessTokenTTL: time.Hour})
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func middlewareRouter(m *Manager, store UserStore) *gin.Engine {
	router := gin.New()
	router.Use(m.Middleware(store, zap.NewNop()))
	router.GET("/whoami", func(c *gin.Context) {
		if u := guard.CurrentUser(c); u != nil {
			c.JSON(http.StatusOK, gin.H{"id": u.ID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": nil})
	})
	return router
}

func performAuth(router *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestMiddlewareResolvesActiveUser(t *testing.T) {
	m := testManager(time.Hour)
	u := &entity.User{ID: uuid.New(), IsEnabled: true, IsVerified: true}
	router := middlewareRouter(m, fakeStore{u.ID: u})

	token, err := m.Mint(u)
	require.NoError(t, err)

	w := performAuth(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), u.ID.String())
}

func TestMiddlewareLeavesRequestAnonymous(t *testing.T) {
	m := testManager(time.Hour)
	active := &entity.User{ID: uuid.New(), IsEnabled: true, IsVerified: true}
	inactive := &entity.User{ID: uuid.New(), IsEnabled: true, IsVerified: false}
	router := middlewareRouter(m, fakeStore{active.ID: active, inactive.ID: inactive})

	_, err := m.Mint(active)
	require.NoError(t, err)
	inactiveToken, err := m.Mint(inactive)
	require.NoError(t, err)
	unknownToken, err := m.Mint(&entity.User{ID: uuid.New()})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer garbage"},
		{"unknown subject", "Bearer " + unknownToken},
		{"inactive user", "Bearer " + inactiveToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := performAuth(router, tc.header)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.NotContains(t, w.Body.String(), active.ID.String())
			assert.Contains(t, w.Body.String(), "null")
		})
	}
}
