/**
 * Alignment Worker - Main Entry Point
 *
 * Pairs HTR/OCR line predictions of letter pages with the matching
 * substring of their manual transcription, producing ground truth for
 * handwriting recognition training.
 *
 * Architecture:
 * - asynq or plain Redis LIST consumer for page jobs
 * - alignment pipeline (load, normalize, align, judge, report)
 * - PostgreSQL persistence of jobs and per-line results
 * - Qdrant label index for duplicate label detection
 * - FileProcess artifact API for inputs and review reports
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/clients"
	"github.com/adverant/nexus/alignment-worker/internal/config"
	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/processor"
	"github.com/adverant/nexus/alignment-worker/internal/queue"
	"github.com/adverant/nexus/alignment-worker/internal/storage"
)

// consumer is implemented by both queue backends
type consumer interface {
	start(ctx context.Context) error
	stop(ctx context.Context) error
}

type asynqBackend struct{ c *queue.Consumer }

func (b asynqBackend) start(ctx context.Context) error { return b.c.Start(ctx) }
func (b asynqBackend) stop(ctx context.Context) error  { return b.c.Stop(ctx) }

type redisBackend struct{ c *queue.RedisConsumer }

func (b redisBackend) start(context.Context) error { return b.c.Start() }
func (b redisBackend) stop(context.Context) error  { return b.c.Stop() }

func main() {
	logger := logging.NewLogger("Worker")

	if err := run(logger); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.RequireServices(); err != nil {
		return err
	}

	// LOG_LEVEL may only have been set by the env file
	level := logging.ParseLevel(cfg.LogLevel)
	newLogger := func(prefix string) *logging.Logger {
		return logging.NewLoggerTo(os.Stdout, prefix, level)
	}
	logger = newLogger(logger.Prefix())

	logger.Info("Alignment worker starting",
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"scorer", cfg.Align.Scorer,
		"curate", cfg.Align.Curate)

	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("failed to initialize storage manager: %w", err)
	}
	defer storageManager.Close()
	logStorageStats(logger, storageManager)

	services := processor.Services{Store: storageManager}
	if cfg.ArtifactAPIURL != "" {
		artifacts := clients.NewArtifactClient(cfg.ArtifactAPIURL, logger.With("client", "artifacts"))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := artifacts.HealthCheck(ctx); err != nil {
			logger.Warn("Artifact API health check failed, inputs by artifact ID and review reports may fail", "error", err)
		}
		cancel()
		services.Artifacts = artifacts
	} else {
		logger.Warn("ARTIFACT_API_URL not configured, review reports will not be uploaded")
	}

	proc, err := processor.NewFromConfig(cfg, services, newLogger("Processor"))
	if err != nil {
		return fmt.Errorf("failed to initialize document processor: %w", err)
	}

	var backend consumer
	switch cfg.QueueBackend {
	case config.QueueBackendRedis:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.Timeout(),
			Logger:            newLogger("Queue"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize queue consumer: %w", err)
		}
		backend = redisBackend{c}
	default:
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.Timeout(),
			Logger:            newLogger("Queue"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize queue consumer: %w", err)
		}
		backend = asynqBackend{c}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := backend.start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	logger.Info("Alignment worker is ready, waiting for jobs")

	<-ctx.Done()
	logger.Info("Received shutdown signal, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()+5*time.Second)
	defer cancel()
	if err := backend.stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// logStorageStats reports pool and label collection state at startup
func logStorageStats(logger *logging.Logger, sm *storage.StorageManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := sm.GetStats(ctx)
	if err != nil {
		logger.Warn("Could not read storage statistics", "error", err)
		return
	}
	logger.Info("Storage manager initialized", "postgres", stats["postgres"], "qdrant", stats["qdrant"])
}
