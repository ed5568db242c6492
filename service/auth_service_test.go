package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/config"
	"github.com/roadandrail/keg-auth/entity"
	domainErrors "github.com/roadandrail/keg-auth/errors"
	"github.com/roadandrail/keg-auth/mail"
	"github.com/roadandrail/keg-auth/password"
	"github.com/roadandrail/keg-auth/sectoken"
)

// memoryRepo is an in-memory UserRepository with the same uniqueness and
// case-folding behavior as the postgres implementation.
type memoryRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entity.User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[uuid.UUID]*entity.User)}
}

func (r *memoryRepo) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return domainErrors.NewFieldConflict("email")
		}
	}
	clone := *u
	r.users[u.ID] = &clone
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *memoryRepo) FindByIdentifier(_ context.Context, identifier string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, identifier) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrUserNotFound
}

func (r *memoryRepo) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return domainErrors.ErrUserNotFound
	}
	clone := *u
	r.users[u.ID] = &clone
	return nil
}

// recordingMailer captures outbound messages.
type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type fixture struct {
	svc    *AuthService
	repo   *memoryRepo
	mailer *recordingMailer
	issuer *sectoken.Issuer
}

func newFixture(t *testing.T, cfg config.AuthConfig, withMailer bool) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	issuer := sectoken.NewIssuer()
	hasher := password.NewArgon2Hasher(password.Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})

	var (
		mailer   mail.Mailer
		recorder *recordingMailer
	)
	if withMailer {
		recorder = &recordingMailer{}
		mailer = recorder
	}

	svc := NewAuthService(repo, hasher, issuer, mailer, cfg, zap.NewNop())
	return &fixture{svc: svc, repo: repo, mailer: recorder, issuer: issuer}
}

// tokenFromLink extracts the trailing path segment of the first link in the
// most recent mail, which is the plaintext token.
func tokenFromLink(t *testing.T, msg mail.Message) (uuid.UUID, string) {
	t.Helper()
	start := strings.Index(msg.Body, "href=\"")
	require.GreaterOrEqual(t, start, 0)
	rest := msg.Body[start+len("href=\""):]
	end := strings.Index(rest, "\"")
	require.GreaterOrEqual(t, end, 0)
	parts := strings.Split(rest[:end], "/")
	require.GreaterOrEqual(t, len(parts), 2)

	userID, err := uuid.Parse(parts[len(parts)-2])
	require.NoError(t, err)
	return userID, parts[len(parts)-1]
}

func TestRegisterWithoutVerification(t *testing.T) {
	f := newFixture(t, config.AuthConfig{VerificationRequired: false}, false)

	user, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "New.User@Example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, "new.user@example.com", user.Email, "email must be stored lowercased")
	assert.True(t, user.IsEnabled)
	assert.True(t, user.IsVerified)
	assert.True(t, user.IsActive())
	assert.NotEqual(t, "password123", user.PasswordHash)
}

func TestRegisterWithVerification(t *testing.T) {
	f := newFixture(t, config.AuthConfig{
		VerificationRequired: true,
		PublicBaseURL:        "https://example.com",
	}, true)

	user, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "pending@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.False(t, user.IsVerified)
	assert.False(t, user.IsActive())

	sent := f.mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pending@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "verify-account")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, config.AuthConfig{}, false)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "password123"})
	assert.Error(t, err)

	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "short"})
	assert.Error(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t, config.AuthConfig{}, false)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "dup@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "DUP@example.com", Password: "password123"})
	require.Error(t, err)
	assert.True(t, domainErrors.IsConflict(err))
}

func TestRegisterSuperuserToggle(t *testing.T) {
	denied := newFixture(t, config.AuthConfig{AllowSuperuserSignup: false}, false)
	user, err := denied.svc.Register(context.Background(), RegisterInput{
		Email: "a@example.com", Password: "password123", Superuser: true,
	})
	require.NoError(t, err)
	assert.False(t, user.IsSuperuser)

	allowed := newFixture(t, config.AuthConfig{AllowSuperuserSignup: true}, false)
	user, err = allowed.svc.Register(context.Background(), RegisterInput{
		Email: "b@example.com", Password: "password123", Superuser: true,
	})
	require.NoError(t, err)
	assert.True(t, user.IsSuperuser)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, config.AuthConfig{}, false)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "login@example.com", Password: "password123",
	})
	require.NoError(t, err)

	user, err := f.svc.Authenticate(context.Background(), "login@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "login@example.com", user.Email)

	user, err = f.svc.Authenticate(context.Background(), "LOGIN@EXAMPLE.COM", "password123")
	require.NoError(t, err, "identifier lookup must be case-insensitive")
	assert.Equal(t, "login@example.com", user.Email)

	_, err = f.svc.Authenticate(context.Background(), "login@example.com", "wrong")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	_, err = f.svc.Authenticate(context.Background(), "nobody@example.com", "password123")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)
}

func TestAuthenticateInactive(t *testing.T) {
	f := newFixture(t, config.AuthConfig{
		VerificationRequired: true,
		PublicBaseURL:        "https://example.com",
	}, true)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "pending@example.com", Password: "password123",
	})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), "pending@example.com", "password123")
	assert.ErrorIs(t, err, domainErrors.ErrUserInactive,
		"correct credentials but unverified account")
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t, config.AuthConfig{PublicBaseURL: "https://example.com"}, true)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "reset@example.com", Password: "oldpassword",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.InitiatePasswordReset(context.Background(), "reset@example.com"))
	sent := f.mailer.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "reset-password")

	userID, token := tokenFromLink(t, sent[0])

	assert.True(t, f.svc.VerifyResetToken(context.Background(), userID, token))
	assert.True(t, f.svc.VerifyResetToken(context.Background(), userID, token),
		"checking the token must not consume it")
	assert.False(t, f.svc.VerifyResetToken(context.Background(), userID, "garbage"))

	require.NoError(t, f.svc.ResetPassword(context.Background(), userID, token, "newpassword"))

	_, err = f.svc.Authenticate(context.Background(), "reset@example.com", "newpassword")
	require.NoError(t, err)
	_, err = f.svc.Authenticate(context.Background(), "reset@example.com", "oldpassword")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	assert.False(t, f.svc.VerifyResetToken(context.Background(), userID, token),
		"completing the reset must consume the token")
	err = f.svc.ResetPassword(context.Background(), userID, token, "anotherpassword")
	assert.ErrorIs(t, err, domainErrors.ErrTokenInvalid)
}

func TestResetPasswordMarksVerified(t *testing.T) {
	f := newFixture(t, config.AuthConfig{
		VerificationRequired: true,
		PublicBaseURL:        "https://example.com",
	}, true)
	registered, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "unverified@example.com", Password: "oldpassword",
	})
	require.NoError(t, err)
	require.False(t, registered.IsVerified)

	require.NoError(t, f.svc.InitiatePasswordReset(context.Background(), "unverified@example.com"))
	sent := f.mailer.sent()
	userID, token := tokenFromLink(t, sent[len(sent)-1])

	require.NoError(t, f.svc.ResetPassword(context.Background(), userID, token, "newpassword"))

	user, err := f.repo.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, user.IsVerified, "completing a reset proves control of the mail channel")
}

func TestInitiateResetUnknownIdentifierIsSilent(t *testing.T) {
	f := newFixture(t, config.AuthConfig{PublicBaseURL: "https://example.com"}, true)

	require.NoError(t, f.svc.InitiatePasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.mailer.sent())
}

func TestInitiateResetWithoutMailer(t *testing.T) {
	f := newFixture(t, config.AuthConfig{}, false)

	err := f.svc.InitiatePasswordReset(context.Background(), "anyone@example.com")
	assert.ErrorIs(t, err, domainErrors.ErrMailerNotConfigured)
}

func TestVerifyAccountFlow(t *testing.T) {
	f := newFixture(t, config.AuthConfig{
		VerificationRequired: true,
		PublicBaseURL:        "https://example.com",
	}, true)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "confirm@example.com", Password: "password123",
	})
	require.NoError(t, err)

	sent := f.mailer.sent()
	require.Len(t, sent, 1)
	userID, token := tokenFromLink(t, sent[0])

	err = f.svc.VerifyAccount(context.Background(), userID, "wrong")
	assert.ErrorIs(t, err, domainErrors.ErrTokenInvalid)

	require.NoError(t, f.svc.VerifyAccount(context.Background(), userID, token))

	user, err := f.repo.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Nil(t, user.TokenHash)

	err = f.svc.VerifyAccount(context.Background(), userID, token)
	assert.ErrorIs(t, err, domainErrors.ErrTokenInvalid, "token is consumed by verification")
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t, config.AuthConfig{
		VerificationRequired: true,
		PublicBaseURL:        "https://example.com",
	}, true)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "resend@example.com", Password: "password123",
	})
	require.NoError(t, err)
	require.Len(t, f.mailer.sent(), 1)

	require.NoError(t, f.svc.ResendVerification(context.Background(), "resend@example.com"))
	sent := f.mailer.sent()
	require.Len(t, sent, 2)

	// The fresh token invalidates the one in the first mail.
	_, firstToken := tokenFromLink(t, sent[0])
	userID, secondToken := tokenFromLink(t, sent[1])
	assert.ErrorIs(t, f.svc.VerifyAccount(context.Background(), userID, firstToken),
		domainErrors.ErrTokenInvalid)
	require.NoError(t, f.svc.VerifyAccount(context.Background(), userID, secondToken))

	require.NoError(t, f.svc.ResendVerification(context.Background(), "resend@example.com"))
	assert.Len(t, f.mailer.sent(), 2, "already verified accounts get no further mail")

	require.NoError(t, f.svc.ResendVerification(context.Background(), "nobody@example.com"))
	assert.Len(t, f.mailer.sent(), 2, "unknown identifiers stay silent")
}
