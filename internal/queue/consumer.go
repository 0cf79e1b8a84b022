/**
 * Queue Consumer for the alignment worker
 *
 * Consumes align-document tasks through asynq. Jobs whose input is missing
 * or malformed are failed without retry; everything else is retried with
 * exponential backoff.
 */

package queue

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/alignment-worker/internal/logging"
	"github.com/adverant/nexus/alignment-worker/internal/processor"
)

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Queue")
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return retryDelay(n)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: asynqLogger{logger},
		},
	)

	consumer := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	consumer.mux.HandleFunc(TaskTypeAlignDocument, consumer.handleAlignDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "backend", "asynq", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleAlignDocument processes one page alignment task
func (c *Consumer) handleAlignDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	job, err := DecodeJobPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	logger := c.logger.With("job", job.JobID)

	logger.Info("Processing page", "document", job.DocumentID, "page", job.PageName)

	if err := c.processor.UpdateJobStatus(ctx, job.JobID, "processing", job.statusMetadata()); err != nil {
		logger.Warn("Failed to update status to processing", "error", err)
	}

	timeout := c.config.ProcessingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessDocument(processCtx, job.ProcessRequest())
	duration := time.Since(startTime)

	if err != nil {
		final := !retryable(err) || lastAttempt(ctx)
		logger.Warn("Processing failed", "duration", duration.String(), "final", final, "error", err)

		if final {
			if updateErr := c.processor.UpdateJobStatus(ctx, job.JobID, "failed", failureMetadata(job.JobID, err, duration)); updateErr != nil {
				logger.Warn("Failed to update status to failed", "error", updateErr)
			}
		}

		if !retryable(err) {
			return fmt.Errorf("alignment failed: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("alignment failed: %w", err)
	}

	logger.Info("Processing completed",
		"document", result.DocumentID,
		"accepted", len(result.Result.Accepted),
		"unaligned", len(result.Result.Rejected)+len(result.Result.Skipped),
		"duration", duration.String())

	return nil
}

// lastAttempt reports whether a failure now exhausts the task's retries
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"backend":     "asynq",
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// asynqLogger routes asynq's own logs through the worker logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
