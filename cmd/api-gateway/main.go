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
	"go.uber.org/zap"

	_ "github.com/noah-isme/fabnest-api/api/swagger"
	"github.com/noah-isme/fabnest-api/internal/handler"
	"github.com/noah-isme/fabnest-api/internal/repository"
	"github.com/noah-isme/fabnest-api/internal/server"
	"github.com/noah-isme/fabnest-api/internal/service"
	"github.com/noah-isme/fabnest-api/pkg/cache"
	"github.com/noah-isme/fabnest-api/pkg/config"
	"github.com/noah-isme/fabnest-api/pkg/database"
	"github.com/noah-isme/fabnest-api/pkg/jobs"
	"github.com/noah-isme/fabnest-api/pkg/logger"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

// @title FABNEST API
// @version 1.0.0
// @description 3D printing storefront: uploads, quotes, orders and catalog
// @BasePath /
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	applied, err := database.NewMigrator(db, logr).Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		logr.Info("migrations applied", zap.Strings("names", applied))
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if cfg.Catalog.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)

	userRepo := repository.NewUserRepository(db)
	fileRepo := repository.NewFileRepository(db)
	customRepo := repository.NewCustomFileRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	galleryRepo := repository.NewGalleryRepository(db)

	fileSvc := service.NewFileService(fileRepo, store, db, metrics, logr, service.FileServiceConfig{
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes,
		PublicURLPrefix: cfg.Storage.PublicURLPrefix,
	})
	cleanup := jobs.NewQueue("file-cleanup", fileSvc.HandleCleanupJob, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
	})
	cleanup.Start(context.Background())
	defer cleanup.Stop()
	fileSvc.SetCleanupQueue(cleanup)

	notifier := service.NewNotificationService(
		service.NewLogMailer(cfg.Mail.Enabled, cfg.Mail.FromAddress, logr),
		store,
		storage.NewLinkSigner(cfg.Invoices.SignedURLSecret, cfg.Invoices.SignedURLTTL),
		metrics,
		logr,
		service.NotificationConfig{
			BrandName:       cfg.Mail.BrandName,
			Currency:        cfg.Invoices.Currency,
			APIPrefix:       cfg.APIPrefix,
			InvoiceValidity: cfg.Invoices.SignedURLTTL,
		},
	)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	customSvc := service.NewCustomFileService(customRepo, fileRepo, validate, logr)
	quoteSvc := service.NewQuoteService(quoteRepo, customRepo, userRepo, notifier, fileSvc, db, userRepo, metrics, validate, logr,
		service.QuoteServiceConfig{APIPrefix: cfg.APIPrefix})
	orderSvc := service.NewOrderService(orderRepo, productRepo, customRepo, quoteRepo, fileRepo, fileSvc, db, userRepo, metrics, validate, logr,
		service.OrderServiceConfig{APIPrefix: cfg.APIPrefix})
	productSvc := service.NewProductService(productRepo, fileRepo, fileSvc, cacheSvc, db, userRepo, validate, logr)
	gallerySvc := service.NewGalleryService(galleryRepo, fileRepo, fileSvc, cacheSvc, db, userRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, customRepo, quoteRepo, fileSvc, db, userRepo, validate, logr)

	router := server.NewRouter(server.Options{
		Env:            cfg.Env,
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		MetricsEnabled: cfg.Metrics.Enabled,
		PublicDirs:     storage.PublicDirs(store),
	}, server.Handlers{
		Auth:     handler.NewAuthHandler(authSvc),
		Files:    handler.NewFileHandler(fileSvc, customSvc),
		Quotes:   handler.NewQuoteHandler(quoteSvc, orderSvc),
		Orders:   handler.NewOrderHandler(orderSvc),
		Catalog:  handler.NewCatalogHandler(productSvc, gallerySvc),
		Users:    handler.NewUserHandler(userSvc),
		Invoices: handler.NewInvoiceHandler(notifier),
		Metrics:  handler.NewMetricsHandler(metrics, db),
	}, server.Dependencies{
		Tokens:  authSvc,
		Audit:   userRepo,
		Metrics: metrics,
		Logger:  logr,
	})

	return serve(ctx, router, cfg.Port, logr)
}

func serve(ctx context.Context, router http.Handler, port int, logr *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}
