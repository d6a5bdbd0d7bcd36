package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/secure-auth-api/api/swagger"
	"github.com/noah-isme/secure-auth-api/internal/handler"
	"github.com/noah-isme/secure-auth-api/internal/middleware"
	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/internal/repository"
	"github.com/noah-isme/secure-auth-api/internal/service"
	"github.com/noah-isme/secure-auth-api/pkg/cache"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	"github.com/noah-isme/secure-auth-api/pkg/database"
	"github.com/noah-isme/secure-auth-api/pkg/jobs"
	"github.com/noah-isme/secure-auth-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/secure-auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/secure-auth-api/pkg/middleware/requestid"
)

// @title Secure Auth API
// @version 1.0.0
// @description Authentication and device-trust security service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs caches; the service degrades rather than refusing
		// to start.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	notifyQueue := jobs.NewQueue("notifications", notificationHandler(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifyQueue.Start(context.Background())
	defer notifyQueue.Stop()

	v := validator.New()
	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewAuditService(auditRepo, logr)
	rateSvc := service.NewRateLimitService(cfg.RateLimit, logr)
	mfaSvc := service.NewMFAService(challengeRepo, cfg.MFA, logr)
	deviceSvc := service.NewDeviceService(deviceRepo, cacheRepo, cfg.Devices, logr)
	sessionSvc := service.NewSessionService(sessionRepo, tokenRepo, cfg.Sessions, logr)
	tokenSvc := service.NewTokenService(tokenRepo, sessionRepo, userRepo, cfg.JWT, logr)
	authSvc := service.NewAuthService(userRepo, deviceSvc, sessionSvc, tokenSvc, mfaSvc, rateSvc, auditSvc, metricsSvc, notifyQueue, v, cfg, logr)
	internalSvc := service.NewInternalService(userRepo, sessionRepo, deviceRepo, auditSvc, tokenSvc, metricsSvc, cacheRepo, cfg.InternalAPI, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	deviceHandler := handler.NewDeviceHandler(deviceSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	adminHandler := handler.NewAdminHandler(authSvc, auditSvc)
	internalHandler := handler.NewInternalHandler(internalSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/mfa/verify", authHandler.VerifyMFA)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/verify-email", authHandler.VerifyEmail)

		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	devices := api.Group("/devices", middleware.JWT(authSvc))
	{
		devices.GET("", middleware.RequireCapability(models.CapDevicesRead), deviceHandler.List)
		devices.GET("/trusted", middleware.RequireCapability(models.CapDevicesRead), deviceHandler.ListTrusted)
		devices.GET("/current", middleware.RequireCapability(models.CapDevicesRead), deviceHandler.Current)
		devices.POST("/current/trust", middleware.RequireCapability(models.CapDevicesTrust), middleware.Audit(auditSvc, models.AuditActionDeviceTrust), deviceHandler.TrustCurrent)
		devices.GET("/settings", middleware.RequireCapability(models.CapDevicesRead), deviceHandler.GetTrustSettings)
		devices.PUT("/settings", middleware.RequireCapability(models.CapDevicesTrust), deviceHandler.UpdateTrustSettings)
		devices.POST("/:fingerprint/trust", middleware.RequireCapability(models.CapDevicesTrust), middleware.Audit(auditSvc, models.AuditActionDeviceTrust), deviceHandler.Trust)
		devices.DELETE("/:fingerprint/trust", middleware.RequireCapability(models.CapDevicesTrust), middleware.Audit(auditSvc, models.AuditActionDeviceTrust), deviceHandler.RevokeTrust)
		devices.POST("/:fingerprint/block", middleware.RequireCapability(models.CapDevicesBlock), middleware.Audit(auditSvc, models.AuditActionDeviceBlock), deviceHandler.Block)
		devices.DELETE("/:fingerprint/block", middleware.RequireCapability(models.CapDevicesUnblock), middleware.Audit(auditSvc, models.AuditActionDeviceUnblock), deviceHandler.Unblock)
	}

	sessions := api.Group("/sessions", middleware.JWT(authSvc), middleware.RequireCapability(models.CapSessionsManage))
	{
		sessions.GET("", sessionHandler.List)
		sessions.DELETE("/others", sessionHandler.RevokeOthers)
		sessions.DELETE("/:id", sessionHandler.Revoke)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleOperator))
	{
		admin.POST("/users/:id/unlock", middleware.RequireCapability(models.CapUsersUnlock), adminHandler.UnlockAccount)
		admin.GET("/events/high-risk", middleware.RequireCapability(models.CapAuditRead), adminHandler.HighRiskEvents)
	}

	if cfg.InternalAPI.Enabled {
		internal := api.Group("/internal", middleware.ServiceAuth(cfg.InternalAPI.ServiceKey))
		{
			internal.GET("/users/:id", internalHandler.GetUser)
			internal.GET("/users/:id/validate", internalHandler.ValidateUser)
			internal.POST("/token/validate", internalHandler.ValidateToken)
			internal.GET("/audit/high-risk", internalHandler.HighRiskEvents)
			internal.GET("/stats", internalHandler.Stats)
			internal.GET("/metrics", internalHandler.Metrics)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// notificationHandler logs deliveries. Wiring a real mail or push provider
// replaces this single function.
func notificationHandler(logr *zap.Logger) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		logr.Info("notification dispatched",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.String("recipient", job.Recipient),
		)
		return nil
	}
}
