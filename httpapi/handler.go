// Package httpapi exposes the credential lifecycle over HTTP for the demo
// host. Handlers translate between JSON and the service layer; enforcement
// is done by guards attached in the router, not here.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/roadandrail/keg-auth/errors"
	"github.com/roadandrail/keg-auth/guard"
	"github.com/roadandrail/keg-auth/jwtauth"
	"github.com/roadandrail/keg-auth/service"
)

// Handler bundles the collaborators the HTTP surface needs.
type Handler struct {
	auth   *service.AuthService
	tokens *jwtauth.Manager
	logger *zap.Logger
}

// NewHandler builds the HTTP handler set.
func NewHandler(auth *service.AuthService, tokens *jwtauth.Manager, logger *zap.Logger) *Handler {
	return &Handler{auth: auth, tokens: tokens, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type identifierRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

type newPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if domainErrors.IsConflict(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "already registered"})
			return
		}
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"verified": user.IsVerified,
	})
}

// Login handles POST /auth/login and mints an access token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		if domainErrors.IsUnauthorized(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, err := h.tokens.Mint(user)
	if err != nil {
		h.logger.Error("failed to mint access token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// InitiateReset handles POST /auth/password-reset. Always 202 for known and
// unknown identifiers alike.
func (h *Handler) InitiateReset(c *gin.Context) {
	var req identifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.auth.InitiatePasswordReset(c.Request.Context(), req.Identifier); err != nil {
		h.logger.Error("password reset initiation failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "password reset unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// CheckResetToken handles GET /auth/password-reset/:user_id/:token so the
// host can decide whether to render a reset form.
func (h *Handler) CheckResetToken(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired token"})
		return
	}
	if !h.auth.VerifyResetToken(c.Request.Context(), userID, c.Param("token")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "valid"})
}

// CompleteReset handles POST /auth/password-reset/:user_id/:token.
func (h *Handler) CompleteReset(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired token"})
		return
	}
	var req newPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = h.auth.ResetPassword(c.Request.Context(), userID, c.Param("token"), req.Password)
	if err != nil {
		if domainErrors.IsNotFound(err) || domainErrors.IsTokenInvalid(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired token"})
			return
		}
		h.logger.Error("password reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password changed"})
}

// VerifyAccount handles POST /auth/verify-account/:user_id/:token.
func (h *Handler) VerifyAccount(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired token"})
		return
	}
	err = h.auth.VerifyAccount(c.Request.Context(), userID, c.Param("token"))
	if err != nil {
		if domainErrors.IsNotFound(err) || domainErrors.IsTokenInvalid(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired token"})
			return
		}
		h.logger.Error("account verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

// ResendVerification handles POST /auth/resend-verification.
func (h *Handler) ResendVerification(c *gin.Context) {
	var req identifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.auth.ResendVerification(c.Request.Context(), req.Identifier); err != nil {
		h.logger.Error("resend verification failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification mail unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Me handles GET /me for the authenticated user.
func (h *Handler) Me(c *gin.Context) {
	user := guard.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	tokens := make([]string, 0)
	for token := range user.EffectivePermissionTokens() {
		tokens = append(tokens, token)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"email":       user.Email,
		"superuser":   user.IsSuperuser,
		"permissions": tokens,
	})
}
