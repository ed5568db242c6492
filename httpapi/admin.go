package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/entity"
)

// UserLister is the narrow read surface the admin endpoints need.
type UserLister interface {
	List(ctx context.Context) ([]*entity.User, error)
	ListActive(ctx context.Context) ([]*entity.User, error)
}

// AdminHandler serves the permission-gated management endpoints.
type AdminHandler struct {
	users  UserLister
	logger *zap.Logger
}

// NewAdminHandler builds the admin handler set.
func NewAdminHandler(users UserLister, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{users: users, logger: logger}
}

// ListUsers handles GET /admin/users. The active query parameter restricts
// the listing to enabled and verified accounts.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var (
		users []*entity.User
		err   error
	)
	if c.Query("active") == "true" {
		users, err = h.users.ListActive(c.Request.Context())
	} else {
		users, err = h.users.List(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":        u.ID,
			"email":     u.Email,
			"enabled":   u.IsEnabled,
			"verified":  u.IsVerified,
			"superuser": u.IsSuperuser,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
