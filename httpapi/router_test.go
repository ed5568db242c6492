package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"github.com/roadandrail/keg-auth/jwtauth"
	"github.com/roadandrail/keg-auth/password"
	"github.com/roadandrail/keg-auth/sectoken"
	"github.com/roadandrail/keg-auth/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// userStore is an in-memory stand-in for the postgres user repository,
// serving both the service layer and the admin listing.
type userStore struct {
	users     map[uuid.UUID]*entity.User
	createErr error
}

func newUserStore() *userStore {
	return &userStore{users: make(map[uuid.UUID]*entity.User)}
}

func (s *userStore) Create(_ context.Context, u *entity.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return domainErrors.NewFieldConflict("email")
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *userStore) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	return u, nil
}

func (s *userStore) FindByIdentifier(_ context.Context, identifier string) (*entity.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) {
			return u, nil
		}
	}
	return nil, domainErrors.ErrUserNotFound
}

func (s *userStore) Update(_ context.Context, u *entity.User) error {
	if _, ok := s.users[u.ID]; !ok {
		return domainErrors.ErrUserNotFound
	}
	s.users[u.ID] = u
	return nil
}

func (s *userStore) List(context.Context) ([]*entity.User, error) {
	out := make([]*entity.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *userStore) ListActive(ctx context.Context) ([]*entity.User, error) {
	all, _ := s.List(ctx)
	active := all[:0]
	for _, u := range all {
		if u.IsActive() {
			active = append(active, u)
		}
	}
	return active, nil
}

func testRouter(t *testing.T, store *userStore) *gin.Engine {
	t.Helper()
	logger := zap.NewNop()
	hasher := password.NewArgon2Hasher(password.Params{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	issuer := sectoken.NewIssuer()
	authService := service.NewAuthService(store, hasher, issuer, nil,
		config.AuthConfig{VerificationRequired: false}, logger)
	tokens := jwtauth.NewManager(config.JWTConfig{
		Secret: "router-test", AccessTokenTTL: time.Hour, Issuer: "test",
	})

	return SetupRouter(RouterDeps{
		Handler:   NewHandler(authService, tokens, logger),
		Admin:     NewAdminHandler(store, logger),
		Principal: tokens.Middleware(store, logger),
		Metrics:   nil,
		Logger:    logger,
	})
}

func doJSON(router *gin.Engine, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginMe(t *testing.T) {
	store := newUserStore()
	router := testRouter(t, store)

	w := doJSON(router, http.MethodPost, "/auth/register", gin.H{
		"email": "flow@example.com", "password": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPost, "/auth/register", gin.H{
		"email": "flow@example.com", "password": "password123",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/login", gin.H{
		"identifier": "flow@example.com", "password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/login", gin.H{
		"identifier": "flow@example.com", "password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.AccessToken)

	w = doJSON(router, http.MethodGet, "/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/me", nil, loginResp.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flow@example.com")
}

func TestAdminRequiresPermission(t *testing.T) {
	store := newUserStore()
	router := testRouter(t, store)

	plain := &entity.User{
		ID: uuid.New(), Email: "plain@example.com",
		IsEnabled: true, IsVerified: true,
	}
	manager := &entity.User{
		ID: uuid.New(), Email: "manager@example.com",
		IsEnabled: true, IsVerified: true,
		Permissions: []entity.Permission{{ID: uuid.New(), Token: "auth-manage"}},
	}
	require.NoError(t, store.Create(context.Background(), plain))
	require.NoError(t, store.Create(context.Background(), manager))

	tokens := jwtauth.NewManager(config.JWTConfig{
		Secret: "router-test", AccessTokenTTL: time.Hour, Issuer: "test",
	})
	plainToken, err := tokens.Mint(plain)
	require.NoError(t, err)
	managerToken, err := tokens.Mint(manager)
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/admin/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/admin/users", nil, plainToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodGet, "/admin/users", nil, managerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "plain@example.com")
}

func TestResetAndVerifyRejectBadTokens(t *testing.T) {
	store := newUserStore()
	router := testRouter(t, store)

	user := &entity.User{
		ID: uuid.New(), Email: "tokens@example.com",
		IsEnabled: true, IsVerified: false,
	}
	require.NoError(t, store.Create(context.Background(), user))

	// A token that was never issued must render the graceful invalid-or-
	// expired response, not an internal error.
	w := doJSON(router, http.MethodPost,
		"/auth/password-reset/"+user.ID.String()+"/not-the-token",
		gin.H{"password": "newpassword"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired token")

	w = doJSON(router, http.MethodPost,
		"/auth/verify-account/"+user.ID.String()+"/not-the-token", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired token")
	assert.False(t, store.users[user.ID].IsVerified)

	// Unknown users and malformed IDs get the same response.
	w = doJSON(router, http.MethodPost,
		"/auth/password-reset/"+uuid.NewString()+"/whatever",
		gin.H{"password": "newpassword"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost,
		"/auth/verify-account/not-a-uuid/whatever", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet,
		"/auth/password-reset/"+user.ID.String()+"/not-the-token", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterStatusMapping(t *testing.T) {
	store := newUserStore()
	router := testRouter(t, store)

	// Input the service's validator rejects is the client's fault.
	w := doJSON(router, http.MethodPost, "/auth/register", gin.H{
		"email": "not-an-email", "password": "password123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/register", gin.H{
		"email": "short@example.com", "password": "short",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A persistence failure is not.
	store.createErr = errors.New("connection refused")
	w = doJSON(router, http.MethodPost, "/auth/register", gin.H{
		"email": "down@example.com", "password": "password123",
	}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth(t *testing.T) {
	router := testRouter(t, newUserStore())
	w := doJSON(router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
