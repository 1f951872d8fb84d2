package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/cache"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/database"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/delivery"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/middleware"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/orchestrator"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/queue"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/scheduler"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/storage"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/tracing"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/transcoder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/upload"
	"github.com/gin-gonic/gin"
)

const (
	pollBatchSize     = 100
	pollConcurrency   = 8
	limiterIdleExpiry = 10 * time.Minute
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer closer.Close()

	// Initialize JWT secret from config
	middleware.SetJWTSecret(cfg.Auth.JWTSecret)
	if cfg.Auth.WebhookSecret == "" {
		logger.Warn("No webhook secret configured; encoder callbacks will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	var (
		store  Store
		health func(context.Context) error
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to migrate database")
		}
		store = database.NewRepository(db, logger)
		health = db.Health
	} else {
		logger.Warn("Database disabled; using in-memory store")
		store = database.NewMemoryRepository()
	}

	// Initialize storage
	stor, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	keys := storage.NewKeyManager(stor, storage.OptionsFromConfig(cfg.Storage, cfg.Delivery), logger)

	// Initialize cache
	redisCache, err := cache.NewCache(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to queue")
	}
	defer q.Close()

	registry := ladder.Default()

	orch := orchestrator.New(
		store,
		queue.NewEncoder(q, redisCache, cfg.Worker.StatusTTL),
		registry,
		orchestrator.ConfigFrom(cfg.Orchestrator),
		orchestrator.WithLocker(cache.NewLocker(redisCache, cfg.Orchestrator.LockTTL, logger)),
		orchestrator.WithLogger(logger),
	)

	policy, err := delivery.NewAccessPolicy(cfg.Delivery.PlanCeilings)
	if err != nil {
		logger.WithError(err).Fatal("Invalid plan ceilings")
	}
	if cfg.Delivery.LinkSecret == "" {
		cfg.Delivery.LinkSecret = cfg.Auth.JWTSecret
	}
	resolver := delivery.NewResolver(store, registry, policy, keys, delivery.ConfigFrom(cfg.Delivery), logger)

	uploads := upload.NewManager(cfg.Upload, logger)
	go uploads.Cleanup(ctx, time.Hour)

	poller := scheduler.NewPoller(orch, cfg.Orchestrator.PollInterval, pollBatchSize, pollConcurrency, logger)
	poller.Start(ctx)
	defer poller.Stop()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go limiter.Cleanup(ctx, time.Minute, limiterIdleExpiry)

	if err := os.MkdirAll(cfg.Upload.TempDir, 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create upload directory")
	}

	// Create API instance
	api := &API{
		store:         store,
		keys:          keys,
		uploads:       uploads,
		orchestrator:  orch,
		resolver:      resolver,
		registry:      registry,
		prober:        transcoder.NewFFmpeg(cfg.Worker.FFmpegPath, cfg.Worker.FFprobePath),
		health:        health,
		webhookSecret: cfg.Auth.WebhookSecret,
		maxUpload:     cfg.Server.MaxUploadBytes,
		tempDir:       cfg.Upload.TempDir,
		logger:        logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(api, limiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("Server stopped")
}
