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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/iqc-intake-api/api/swagger"
	"github.com/noah-isme/iqc-intake-api/internal/handler"
	internalmiddleware "github.com/noah-isme/iqc-intake-api/internal/middleware"
	"github.com/noah-isme/iqc-intake-api/internal/repository"
	"github.com/noah-isme/iqc-intake-api/internal/service"
	"github.com/noah-isme/iqc-intake-api/pkg/cache"
	"github.com/noah-isme/iqc-intake-api/pkg/config"
	"github.com/noah-isme/iqc-intake-api/pkg/database"
	"github.com/noah-isme/iqc-intake-api/pkg/extraction"
	"github.com/noah-isme/iqc-intake-api/pkg/jobs"
	"github.com/noah-isme/iqc-intake-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/iqc-intake-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/iqc-intake-api/pkg/middleware/requestid"
	"github.com/noah-isme/iqc-intake-api/pkg/storage"
)

// @title IQC Intake API
// @version 1.0.0
// @description Document intake, review and progress tracking for the Internal Quality Cell
// @BasePath /api/v1
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
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Tracker.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, tracker cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	store, storePinger, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	metrics := service.NewMetricsService()
	users := repository.NewUserRepository(db)
	documents := repository.NewDocumentRepository(db)
	events := repository.NewEventRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Tracker.CacheTTL, logr, redisClient != nil)

	authSvc := service.NewAuthService(users, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	if cfg.Seed.Enabled {
		created, err := authSvc.SeedDefaults(ctx, cfg.Seed.DefaultPassword)
		if err != nil {
			return fmt.Errorf("seed default accounts: %w", err)
		}
		logr.Info("default accounts ensured", zap.Strings("created", created))
	}

	ingest := service.NewIngestService(documents, store, extraction.NewClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout), metrics, logr)
	queue := jobs.NewQueue("extraction", ingest.Handle, jobs.QueueConfig{
		Workers:    cfg.Extraction.Workers,
		BufferSize: cfg.Extraction.BufferSize,
		MaxRetries: -1,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	submissions := service.NewSubmissionService(documents, store, signer, queue, users, metrics, logr, service.SubmissionConfig{
		MaxFileSize:       cfg.Storage.MaxFileSizeBytes,
		AllowedExtensions: cfg.Storage.AllowedExtensions,
	})
	aggregation := service.NewAggregationService(events, users, cacheSvc, logr, service.AggregationConfig{
		Target:   cfg.Tracker.Target,
		CacheTTL: cfg.Tracker.CacheTTL,
	})
	reviews := service.NewReviewService(events, documents, submissions, aggregation, users, metrics, logr)
	reports := service.NewReportService(aggregation, users, logr, cfg.Reports.Institution)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Storage.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	dependencies := map[string]handler.Pinger{
		"postgres": handler.PingerFunc(db.PingContext),
		"storage":  storePinger,
	}
	if redisClient != nil {
		dependencies["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Documents: handler.NewDocumentHandler(submissions, reviews, cfg.APIPrefix+"/documents/download"),
		Reviews:   handler.NewReviewHandler(reviews),
		Tracker:   handler.NewTrackerHandler(aggregation, reports),
		Metrics:   handler.NewMetricsHandler(metrics, dependencies),
	}, handler.RouteDeps{Tokens: authSvc, Audit: users})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
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
	return srv.Shutdown(shutdownCtx)
}

// openStorage returns the configured object store and its readiness probe. Local storage has none.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, handler.Pinger, error) {
	switch cfg.Driver {
	case config.StorageDriverMinio:
		minioStore, err := storage.NewMinioStorage(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return minioStore, minioStore, nil
	case config.StorageDriverLocal, "":
		local, err := storage.NewLocalStorage(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return local, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
