package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/stageops/promotion-api/api/swagger"
	"github.com/stageops/promotion-api/internal/handler"
	"github.com/stageops/promotion-api/internal/middleware"
	"github.com/stageops/promotion-api/internal/models"
	"github.com/stageops/promotion-api/internal/repository"
	"github.com/stageops/promotion-api/internal/service"
	"github.com/stageops/promotion-api/pkg/cache"
	"github.com/stageops/promotion-api/pkg/config"
	"github.com/stageops/promotion-api/pkg/database"
	"github.com/stageops/promotion-api/pkg/logger"
	corsmiddleware "github.com/stageops/promotion-api/pkg/middleware/cors"
	reqidmiddleware "github.com/stageops/promotion-api/pkg/middleware/requestid"
)

// @title Promotion API
// @version 1.0.0
// @description Staging to production promotion workflow engine
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	lineageRepo := repository.NewLineageRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	lineageSvc := service.NewLineageService(lineageRepo, cacheRepo, metricsSvc, service.LineageConfig{
		OrgQueryLimit:     cfg.Lineage.OrgQueryLimit,
		CacheTTL:          cfg.Lineage.CacheTTL,
		WriterConcurrency: cfg.Lineage.WriterConcurrency,
		WriterRetries:     cfg.Lineage.WriterRetries,
		WriterRetryDelay:  cfg.Lineage.WriterRetryDelay,
	}, logr)

	promotionSvc := service.NewPromotionService(promotionRepo, resourceRepo, logr,
		service.WithApprovalRetries(cfg.Promotions.ApprovalRetries))
	snapshotSvc := service.NewSnapshotService(snapshotRepo, resourceRepo, cfg.Promotions.SnapshotRetention, logr)
	executor := service.NewPromotionExecutor(promotionRepo, resourceRepo, snapshotSvc, lineageSvc, metricsSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lineageSvc.Start(ctx)
	defer lineageSvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	promotionHandler := handler.NewPromotionHandler(promotionSvc, executor)
	lineageHandler := handler.NewLineageHandler(lineageSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

		if cfg.Promotions.Enabled {
			promotions := api.Group("/promotions", middleware.JWT(authSvc))
			promotions.POST("", middleware.RequireApprover(), promotionHandler.Create)
			promotions.GET("", promotionHandler.List)
			promotions.GET("/:id", promotionHandler.Get)
			promotions.POST("/:id/approve", middleware.RequireApprover(), promotionHandler.Approve)
			promotions.POST("/:id/reject", middleware.RequireApprover(), promotionHandler.Reject)
			promotions.POST("/:id/conflicts/:conflictId/resolve", middleware.RequireApprover(), promotionHandler.ResolveConflict)
			promotions.POST("/:id/execute", middleware.RequireRoles(models.RoleSuperAdmin), promotionHandler.Execute)
			promotions.POST("/:id/rollback", middleware.RequireRoles(models.RoleSuperAdmin), promotionHandler.Rollback)
		}

		lineage := api.Group("/lineage", middleware.JWT(authSvc))
		lineage.GET("/organizations/:orgId", lineageHandler.Organization)
		lineage.GET("/:collection/:id", lineageHandler.Document)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
