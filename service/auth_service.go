// Package service implements the credential lifecycle: registration,
// authentication, and the token-backed password-reset and account
// verification flows. All state goes through the persistence collaborator;
// the service holds no per-request state of its own.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/config"
	"github.com/roadandrail/keg-auth/entity"
	domainErrors "github.com/roadandrail/keg-auth/errors"
	"github.com/roadandrail/keg-auth/mail"
	"github.com/roadandrail/keg-auth/password"
	"github.com/roadandrail/keg-auth/sectoken"
)

// UserRepository is the persistence collaborator the lifecycle needs: a
// uniqueness-enforcing create, identifier lookups, and an update that
// persists credential and token fields.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}

// AuthService drives the credential lifecycle.
type AuthService struct {
	users    UserRepository
	hasher   password.Hasher
	issuer   *sectoken.Issuer
	mailer   mail.Mailer
	cfg      config.AuthConfig
	logger   *zap.Logger
	validate *validator.Validate
}

// NewAuthService wires the lifecycle service. mailer may be nil; reset and
// verification mails are then unavailable and InitiatePasswordReset fails
// with ErrMailerNotConfigured.
func NewAuthService(
	users UserRepository,
	hasher password.Hasher,
	issuer *sectoken.Issuer,
	mailer mail.Mailer,
	cfg config.AuthConfig,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		issuer:   issuer,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

// RegisterInput carries self-registration fields.
type RegisterInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	// Superuser is honored only when the configuration allows superuser
	// self-assignment; otherwise it is ignored.
	Superuser bool
}

// Register creates a new user. When verification is required the account
// starts unverified (hence inactive) and a verification mail is sent if a
// mailer is configured; otherwise the account is active immediately.
// Uniqueness conflicts from the persistence layer bubble up untouched.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid registration input: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	superuser := in.Superuser && s.cfg.AllowSuperuserSignup
	if in.Superuser && !superuser {
		s.logger.Warn("superuser self-assignment rejected by configuration",
			zap.String("email", in.Email))
	}

	user := &entity.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(in.Email),
		PasswordHash: hash,
		IsEnabled:    true,
		IsVerified:   !s.cfg.VerificationRequired,
		IsSuperuser:  superuser,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.Bool("verified", user.IsVerified))

	if s.cfg.VerificationRequired && s.mailer != nil {
		if err := s.sendVerification(ctx, user); err != nil {
			// The account exists; the mail can be re-sent later.
			s.logger.Error("failed to send verification mail", zap.Error(err))
		}
	}
	return user, nil
}

// Authenticate checks identifier and password and returns the user. Unknown
// identifiers and wrong passwords both map to ErrInvalidCredentials so the
// response body never reveals which part failed; disabled or unverified
// users fail with ErrUserInactive only after the password check passes.
func (s *AuthService) Authenticate(ctx context.Context, identifier, plaintext string) (*entity.User, error) {
	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil || !ok {
		return nil, domainErrors.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, domainErrors.ErrUserInactive
	}
	return user, nil
}

// InitiatePasswordReset issues a reset token and mails the link. An unknown
// identifier is not an error: the flow stays silent so it cannot be used to
// probe for accounts. Requires a configured mailer.
func (s *AuthService) InitiatePasswordReset(ctx context.Context, identifier string) error {
	if s.mailer == nil {
		return domainErrors.ErrMailerNotConfigured
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			s.logger.Debug("password reset requested for unknown identifier")
			return nil
		}
		return err
	}

	token, err := s.issuer.Generate(user)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	link := s.resetLink(user, token)
	if err := s.mailer.Send(ctx, mail.PasswordResetMessage(user.Email, link)); err != nil {
		return err
	}
	s.logger.Info("password reset initiated", zap.String("user_id", user.ID.String()))
	return nil
}

// VerifyResetToken reports whether the candidate token is currently valid
// for the user. It never consumes the token, so a reset form can be checked
// once to render and again on submission.
func (s *AuthService) VerifyResetToken(ctx context.Context, userID uuid.UUID, token string) bool {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false
	}
	return s.issuer.Verify(user, token)
}

// ResetPassword completes the reset flow: the token must verify, the new
// password is hashed and stored, the token is cleared (consumed), and the
// user is marked verified, since completing the flow proves control of the
// mail channel.
func (s *AuthService) ResetPassword(ctx context.Context, userID uuid.UUID, token, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.issuer.Verify(user, token) {
		return domainErrors.ErrTokenInvalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	user.IsVerified = true
	s.issuer.Clear(user)

	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.logger.Info("password reset completed", zap.String("user_id", user.ID.String()))
	return nil
}

// VerifyAccount completes the email-verification flow: the token must
// verify, then the account is marked verified and the token cleared.
func (s *AuthService) VerifyAccount(ctx context.Context, userID uuid.UUID, token string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.issuer.Verify(user, token) {
		return domainErrors.ErrTokenInvalid
	}

	user.IsVerified = true
	s.issuer.Clear(user)

	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.logger.Info("account verified", zap.String("user_id", user.ID.String()))
	return nil
}

// ResendVerification issues a fresh verification token and mails the link
// for a not-yet-verified user.
func (s *AuthService) ResendVerification(ctx context.Context, identifier string) error {
	if s.mailer == nil {
		return domainErrors.ErrMailerNotConfigured
	}
	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if user.IsVerified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

func (s *AuthService) sendVerification(ctx context.Context, user *entity.User) error {
	token, err := s.issuer.Generate(user)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	link := s.verifyLink(user, token)
	return s.mailer.Send(ctx, mail.VerificationMessage(user.Email, link))
}

func (s *AuthService) resetLink(user *entity.User, token string) string {
	return fmt.Sprintf("%s/reset-password/%s/%s",
		strings.TrimRight(s.cfg.PublicBaseURL, "/"), user.ID, token)
}

func (s *AuthService) verifyLink(user *entity.User, token string) string {
	return fmt.Sprintf("%s/verify-account/%s/%s",
		strings.TrimRight(s.cfg.PublicBaseURL, "/"), user.ID, token)
}
