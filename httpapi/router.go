package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/authz"
	"github.com/roadandrail/keg-auth/guard"
	"github.com/roadandrail/keg-auth/metrics"
)

// RouterDeps carries everything SetupRouter wires together.
type RouterDeps struct {
	Handler   *Handler
	Admin     *AdminHandler
	Principal gin.HandlerFunc
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// SetupRouter assembles the demo host's route table. The principal
// middleware runs on every request; guards enforce per route or per group.
func SetupRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))
	router.Use(deps.Principal)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/auth")
	{
		auth.POST("/register", deps.Handler.Register)
		auth.POST("/login", deps.Handler.Login)
		auth.POST("/password-reset", deps.Handler.InitiateReset)
		auth.GET("/password-reset/:user_id/:token", deps.Handler.CheckResetToken)
		auth.POST("/password-reset/:user_id/:token", deps.Handler.CompleteReset)
		auth.POST("/verify-account/:user_id/:token", deps.Handler.VerifyAccount)
		auth.POST("/resend-verification", deps.Handler.ResendVerification)
	}

	userGuard := guard.RequireUser(
		guard.WithLogger(deps.Logger),
		guard.WithMetrics(deps.Metrics),
	)
	router.GET("/me", userGuard.Handler(deps.Handler.Me))

	adminGuard := guard.RequirePermissions(authz.Token("auth-manage"),
		guard.WithLogger(deps.Logger),
		guard.WithMetrics(deps.Metrics),
	)
	admin := router.Group("/admin")
	adminGuard.Apply(admin)
	{
		admin.GET("/users", deps.Admin.ListUsers)
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
