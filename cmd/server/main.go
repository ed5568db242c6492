package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/config"
	"github.com/roadandrail/keg-auth/entity"
	"github.com/roadandrail/keg-auth/httpapi"
	"github.com/roadandrail/keg-auth/jwtauth"
	"github.com/roadandrail/keg-auth/logging"
	"github.com/roadandrail/keg-auth/mail"
	"github.com/roadandrail/keg-auth/metrics"
	"github.com/roadandrail/keg-auth/password"
	"github.com/roadandrail/keg-auth/postgres"
	"github.com/roadandrail/keg-auth/registry"
	"github.com/roadandrail/keg-auth/sectoken"
	"github.com/roadandrail/keg-auth/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if cfg.Database.AutoMigrate {
		logger.Info("Running database migrations")
		if err := postgres.MigrateUp(cfg.Database, logger); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL connection pool", zap.Error(err))
	}
	defer pool.Close()

	reg := registry.New()
	if err := reg.RegisterUser(entity.User{}); err != nil {
		logger.Fatal("Failed to register user type", zap.Error(err))
	}
	if err := reg.RegisterPermission(entity.Permission{}); err != nil {
		logger.Fatal("Failed to register permission type", zap.Error(err))
	}
	if err := reg.RegisterGroup(entity.Group{}); err != nil {
		logger.Fatal("Failed to register group type", zap.Error(err))
	}
	if err := reg.RegisterBundle(entity.Bundle{}); err != nil {
		logger.Fatal("Failed to register bundle type", zap.Error(err))
	}

	collectors := metrics.New(prometheus.DefaultRegisterer)

	userRepo := postgres.NewUserRepository(pool, cfg.Auth.LoginIdentifierField, logger)

	hasher := password.NewArgon2Hasher(password.DefaultParams())
	issuer := sectoken.NewIssuer(
		sectoken.WithWindow(cfg.Auth.TokenWindow()),
		sectoken.WithMetrics(collectors),
	)

	var mailer mail.Mailer
	if cfg.SMTP.Enabled {
		mailer = mail.NewSMTPMailer(cfg.SMTP, logger)
	}

	authService := service.NewAuthService(userRepo, hasher, issuer, mailer, cfg.Auth, logger)
	tokenManager := jwtauth.NewManager(cfg.JWT)

	router := httpapi.SetupRouter(httpapi.RouterDeps{
		Handler:   httpapi.NewHandler(authService, tokenManager, logger),
		Admin:     httpapi.NewAdminHandler(userRepo, logger),
		Principal: tokenManager.Middleware(userRepo, logger),
		Metrics:   collectors,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited properly")
}
