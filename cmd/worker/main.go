package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/cache"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/queue"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/retry"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/storage"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/tracing"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/transcoder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/webhook"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

const (
	notifyAttempts   = 5
	dlqCheckInterval = time.Minute
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
	logger = logger.WithComponent("worker")

	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer closer.Close()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	stor, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

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

	var notifier transcoder.StatusNotifier
	if cfg.Worker.CallbackURL != "" {
		notifier = webhook.NewNotifier(
			cfg.Worker.CallbackURL,
			cfg.Auth.WebhookSecret,
			notifyAttempts,
			retry.Backoff{Base: cfg.Orchestrator.BackoffBase, Max: cfg.Orchestrator.BackoffMax},
			logger,
		)
	} else {
		logger.Info("No callback URL configured; status is available by polling only")
	}

	// Initialize transcoder service
	transcoderService := transcoder.NewService(
		transcoder.NewFFmpeg(cfg.Worker.FFmpegPath, cfg.Worker.FFprobePath),
		storage.NewParallelTransfer(stor, storage.DefaultTransferPartSize),
		redisCache,
		notifier,
		transcoder.ServiceConfigFrom(cfg.Worker),
		logger,
	)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Job handler
	jobHandler := func(ctx context.Context, desc *models.EncodeJobDescription) error {
		logger.WithJobID(desc.JobID).Infof("Processing encode job for %s", desc.InputKey)
		return transcoderService.ProcessJob(ctx, desc)
	}

	// Start consuming jobs
	if err := q.ConsumeJobs(ctx, cfg.Worker.Prefetch, jobHandler); err != nil {
		logger.WithError(err).Fatal("Failed to consume jobs")
	}
	logger.Info("Worker started, waiting for jobs...")

	go watchDeadLetters(ctx, q, logger)

	// Wait for shutdown
	<-ctx.Done()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("Worker stopped")
}

// watchDeadLetters logs the dead-letter backlog so operators notice stuck jobs
func watchDeadLetters(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(dlqCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.DeadLetterDepth()
			if err != nil {
				logger.WithError(err).Warn("Failed to inspect dead-letter queue")
				continue
			}
			if depth > 0 {
				logger.WithField("depth", depth).Warn("Encode jobs waiting in dead-letter queue")
			}
		}
	}
}
