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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/supercurriculum-admin/api/swagger"
	"github.com/noah-isme/supercurriculum-admin/internal/apiclient"
	"github.com/noah-isme/supercurriculum-admin/internal/handler"
	"github.com/noah-isme/supercurriculum-admin/internal/middleware"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/internal/querycache"
	"github.com/noah-isme/supercurriculum-admin/internal/repository"
	"github.com/noah-isme/supercurriculum-admin/internal/service"
	"github.com/noah-isme/supercurriculum-admin/pkg/cache"
	"github.com/noah-isme/supercurriculum-admin/pkg/config"
	"github.com/noah-isme/supercurriculum-admin/pkg/database"
	"github.com/noah-isme/supercurriculum-admin/pkg/jobs"
	"github.com/noah-isme/supercurriculum-admin/pkg/logger"
	corsmiddleware "github.com/noah-isme/supercurriculum-admin/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/supercurriculum-admin/pkg/middleware/requestid"
)

// @title Supercurriculum Admin Console
// @version 1.0.0
// @description Session-gated admin console over the supercurriculum backend API
// @BasePath /
// @schemes http

type sessionStore interface {
	Save(ctx context.Context, sess *models.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

type expiryCleaner interface {
	StartCleanup(ctx context.Context, interval time.Duration)
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()

	api := apiclient.New(apiclient.Config{BaseURL: cfg.Upstream.BaseURL, Timeout: cfg.Upstream.Timeout}, logr.Named("apiclient"), metrics)
	queries := querycache.New(querycache.Options{
		StaleTime: cfg.Query.StaleTime,
		Logger:    logr.Named("querycache"),
		Recorder:  metrics,
	})

	store, closeStore, err := openSessionStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open session store", zap.Error(err))
	}
	defer closeStore()
	if cleaner, ok := store.(expiryCleaner); ok {
		cleaner.StartCleanup(ctx, cfg.Session.CleanupInterval)
	}

	permitted := make([]models.UserRole, 0, len(cfg.Session.PermittedRoles))
	for _, role := range cfg.Session.PermittedRoles {
		permitted = append(permitted, models.UserRole(role))
	}
	authSvc := service.NewAuthService(api, store, validate, logr.Named("auth"), service.AuthConfig{
		CookieSecret:   cfg.Session.Secret,
		SessionTTL:     cfg.Session.TTL,
		PermittedRoles: permitted,
	})
	resourceSvc := service.NewResourceService(api, queries, logr.Named("resources"))
	mutationSvc := service.NewMutationService(api, queries, logr.Named("mutations"),
		service.WithMutationMetrics(metrics),
		service.WithMutationValidator(validate),
	)

	importOpts := []service.ImportServiceOption{service.WithImportMetrics(metrics)}
	if cfg.ImportHistory.Enabled {
		db, err := openHistoryDB(ctx, cfg)
		if err != nil {
			logr.Fatal("failed to open import history database", zap.Error(err))
		}
		defer db.Close()

		history := repository.NewImportHistoryRepository(db)
		queue := jobs.NewQueue("import-history", service.ImportHistoryHandler(history), jobs.QueueConfig{
			Workers:    cfg.ImportHistory.Workers,
			MaxRetries: cfg.ImportHistory.Retries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		importOpts = append(importOpts, service.WithImportHistory(history, queue))
	}
	importSvc := service.NewImportService(api, queries, logr.Named("imports"), importOpts...)
	importSvc.StartCleanup(ctx, cfg.Session.CleanupInterval)
	monitorSvc := service.NewMonitorService(api, queries, nil, service.MonitorConfig{
		DiskPath:     cfg.Monitor.DiskPath,
		SampleWindow: cfg.Monitor.SampleWindow,
	}, logr.Named("monitor"))

	authHandler := handler.NewAuthHandler(authSvc, importSvc, handler.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
	})
	resourceHandler := handler.NewResourceHandler(resourceSvc, mutationSvc)
	importHandler := handler.NewImportHandler(importSvc)
	monitorHandler := handler.NewMonitorHandler(monitorSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, api)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET(cfg.Session.LoginPath, authHandler.LoginPage)
	r.POST("/auth/login", authHandler.Login)

	gate := middleware.SessionGate(authSvc, middleware.GateConfig{
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.CookieSecure,
		LoginPath:  cfg.Session.LoginPath,
		Logger:     logr.Named("gate"),
	})
	r.POST("/auth/logout", gate, authHandler.Logout)

	secured := r.Group("/api", gate)
	secured.GET("/me", authHandler.Me)

	resources := secured.Group("/resources/:type")
	resources.GET("", resourceHandler.List)
	resources.GET("/stream", resourceHandler.Stream)
	resources.GET("/:id", resourceHandler.Get)
	writes := resources.Group("", middleware.RequireRolesFor(models.ResourceUsers, models.RoleSuperAdmin))
	writes.POST("", resourceHandler.Create)
	writes.PUT("/:id", resourceHandler.Update)
	writes.DELETE("/:id", resourceHandler.Delete)

	imports := secured.Group("/imports")
	imports.GET("/report", importHandler.State)
	imports.POST("/csv", importHandler.UploadCSV)
	imports.POST("/json", importHandler.ImportStructured)
	imports.POST("/document", importHandler.ParseDocument)
	imports.POST("/document/confirm", importHandler.Confirm)
	imports.GET("/report/export", importHandler.Export)
	imports.GET("/history", importHandler.History)

	secured.GET("/monitor", middleware.RequireRoles(models.RoleSuperAdmin), monitorHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("upstream", api.BaseURL()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
	logr.Info("server stopped")
}

func openSessionStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (sessionStore, func(), error) {
	if cfg.Session.Store != config.SessionStoreRedis {
		return repository.NewMemorySessionRepository(), func() {}, nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewRedisSessionRepository(client, logr.Named("sessions"))
	return repo, func() {
		if err := repo.Close(); err != nil {
			logr.Warn("failed to close session store", zap.Error(err))
		}
	}, nil
}

func openHistoryDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
